package contracts

// Pipeline Stage 정의 (SSOT)
// 로그, 에러, 실행 결과에서 이 상수를 사용해야 함
//
// 파이프라인 흐름:
//   P0 → P1 → P2 → P3 → P4 → P5 → P6 → P7
//   Extract  Catalog  Gate  Prepare  Fit/Load  Predict  Persist  Notify

// Stage represents a pipeline stage
type Stage string

const (
	// StageExtract P0: 원천 판매 데이터 추출 (Orders ⨝ OrderDetails, 일별 집계)
	// 위치: internal/sales/
	StageExtract Stage = "P0_EXTRACT"

	// StageCatalog P1: 예측 대상 엔티티(store × item) 탐색
	// 위치: internal/sales/catalog.go
	StageCatalog Stage = "P1_CATALOG"

	// StageGate P2: 최소 이력 일수 검사 (MIN_HISTORY_DAYS)
	// 위치: internal/pipeline/gate.go
	StageGate Stage = "P2_GATE"

	// StagePrepare P3: 시계열 정렬/중복 제거 또는 tabular 피처 생성
	// 위치: internal/features/
	StagePrepare Stage = "P3_PREPARE"

	// StageFit P4: 모델 학습 또는 레지스트리에서 로드
	// 위치: internal/forecaster/, internal/registry/
	StageFit Stage = "P4_FIT"

	// StagePredict P5: horizon 예측 + 음수 클램프/구간 정렬
	// 위치: internal/pipeline/loop.go
	StagePredict Stage = "P5_PREDICT"

	// StagePersist P6: 결과 일괄 저장 (단일 트랜잭션)
	// 위치: internal/store/
	StagePersist Stage = "P6_PERSIST"

	// StageNotify P7: 구독자에게 new_predictions 푸시
	// 위치: internal/notify/
	StageNotify Stage = "P7_NOTIFY"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// ShortName returns abbreviated stage name (e.g., "P0")
func (s Stage) ShortName() string {
	switch s {
	case StageExtract:
		return "P0"
	case StageCatalog:
		return "P1"
	case StageGate:
		return "P2"
	case StagePrepare:
		return "P3"
	case StageFit:
		return "P4"
	case StagePredict:
		return "P5"
	case StagePersist:
		return "P6"
	case StageNotify:
		return "P7"
	default:
		return "UNKNOWN"
	}
}

// Description returns Korean description of the stage
func (s Stage) Description() string {
	switch s {
	case StageExtract:
		return "판매 데이터 추출"
	case StageCatalog:
		return "엔티티 탐색"
	case StageGate:
		return "이력 충분성 검사"
	case StagePrepare:
		return "시계열/피처 준비"
	case StageFit:
		return "모델 학습/로드"
	case StagePredict:
		return "예측/구간 보정"
	case StagePersist:
		return "결과 저장"
	case StageNotify:
		return "알림 전송"
	default:
		return "알 수 없음"
	}
}

// TrainingStages returns the stages of a training run in order
func TrainingStages() []Stage {
	return []Stage{StageExtract, StageCatalog, StageGate, StagePrepare, StageFit}
}

// PredictionStages returns the stages of a prediction run in order
func PredictionStages() []Stage {
	return []Stage{StageFit, StageExtract, StageCatalog, StageGate, StagePrepare, StagePredict, StagePersist, StageNotify}
}

// RunKind distinguishes pipeline entry points
type RunKind string

const (
	RunTraining   RunKind = "training"
	RunPrediction RunKind = "prediction"
)
