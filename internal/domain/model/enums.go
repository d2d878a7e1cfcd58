package model

// DependencyType classifies the kind of capability a dependency represents.
type DependencyType string

// DependencyType values.
const (
	DependencyTypeDatabase DependencyType = "database"
	DependencyTypeAPI      DependencyType = "api"
	DependencyTypeService  DependencyType = "service"
	DependencyTypeCache    DependencyType = "cache"
	DependencyTypeQueue    DependencyType = "queue"
	DependencyTypeStorage  DependencyType = "storage"
	DependencyTypeExternal DependencyType = "external"
	DependencyTypeOther    DependencyType = "other"
)

// NormalizeDependencyType maps a reported type string to a known
// DependencyType, defaulting to DependencyTypeOther for unknown values.
func NormalizeDependencyType(raw string) DependencyType {
	switch DependencyType(raw) {
	case DependencyTypeDatabase, DependencyTypeAPI, DependencyTypeService,
		DependencyTypeCache, DependencyTypeQueue, DependencyTypeStorage,
		DependencyTypeExternal, DependencyTypeOther:
		return DependencyType(raw)
	default:
		return DependencyTypeOther
	}
}

// HealthState is the coarse severity of a dependency's reported health.
type HealthState int

// HealthState values.
const (
	HealthStateOK       HealthState = 0
	HealthStateWarn     HealthState = 1
	HealthStateCritical HealthState = 2
)

// String returns a human-readable name for the health state.
func (s HealthState) String() string {
	switch s {
	case HealthStateOK:
		return "ok"
	case HealthStateWarn:
		return "warn"
	case HealthStateCritical:
		return "critical"
	default:
		return "unknown"
	}
}
