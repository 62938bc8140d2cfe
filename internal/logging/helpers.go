package logging

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// Session logs to the session category
func Session(format string, args ...interface{}) {
	Get(CategorySession).Info(format, args...)
}

// SessionDebug logs debug to the session category
func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debug(format, args...)
}

// API logs to the api category
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

// Nexus logs to the nexus category
func Nexus(format string, args ...interface{}) {
	Get(CategoryNexus).Info(format, args...)
}

// NexusDebug logs debug to the nexus category
func NexusDebug(format string, args ...interface{}) {
	Get(CategoryNexus).Debug(format, args...)
}

// Controller logs to the controller category
func Controller(format string, args ...interface{}) {
	Get(CategoryController).Info(format, args...)
}

// ControllerDebug logs debug to the controller category
func ControllerDebug(format string, args ...interface{}) {
	Get(CategoryController).Debug(format, args...)
}

// Conscious logs to the conscious category
func Conscious(format string, args ...interface{}) {
	Get(CategoryConscious).Info(format, args...)
}

// ConsciousDebug logs debug to the conscious category
func ConsciousDebug(format string, args ...interface{}) {
	Get(CategoryConscious).Debug(format, args...)
}

// Governor logs to the governor category
func Governor(format string, args ...interface{}) {
	Get(CategoryGovernor).Info(format, args...)
}

// GovernorDebug logs debug to the governor category
func GovernorDebug(format string, args ...interface{}) {
	Get(CategoryGovernor).Debug(format, args...)
}

// Judgment logs to the judgment category
func Judgment(format string, args ...interface{}) {
	Get(CategoryJudgment).Info(format, args...)
}

// JudgmentDebug logs debug to the judgment category
func JudgmentDebug(format string, args ...interface{}) {
	Get(CategoryJudgment).Debug(format, args...)
}

// Reflex logs to the reflex category
func Reflex(format string, args ...interface{}) {
	Get(CategoryReflex).Info(format, args...)
}

// ReflexDebug logs debug to the reflex category
func ReflexDebug(format string, args ...interface{}) {
	Get(CategoryReflex).Debug(format, args...)
}

// Memory logs to the memory category
func Memory(format string, args ...interface{}) {
	Get(CategoryMemory).Info(format, args...)
}

// MemoryDebug logs debug to the memory category
func MemoryDebug(format string, args ...interface{}) {
	Get(CategoryMemory).Debug(format, args...)
}

// Dream logs to the dream category
func Dream(format string, args ...interface{}) {
	Get(CategoryDream).Info(format, args...)
}

// DreamDebug logs debug to the dream category
func DreamDebug(format string, args ...interface{}) {
	Get(CategoryDream).Debug(format, args...)
}

// Skills logs to the skills category
func Skills(format string, args ...interface{}) {
	Get(CategorySkills).Info(format, args...)
}

// SkillsDebug logs debug to the skills category
func SkillsDebug(format string, args ...interface{}) {
	Get(CategorySkills).Debug(format, args...)
}

// Safety logs to the safety category
func Safety(format string, args ...interface{}) {
	Get(CategorySafety).Info(format, args...)
}

// SafetyDebug logs debug to the safety category
func SafetyDebug(format string, args ...interface{}) {
	Get(CategorySafety).Debug(format, args...)
}

// Evolution logs to the evolution category
func Evolution(format string, args ...interface{}) {
	Get(CategoryEvolution).Info(format, args...)
}

// EvolutionDebug logs debug to the evolution category
func EvolutionDebug(format string, args ...interface{}) {
	Get(CategoryEvolution).Debug(format, args...)
}

// Mission logs to the mission category
func Mission(format string, args ...interface{}) {
	Get(CategoryMission).Info(format, args...)
}

// MissionDebug logs debug to the mission category
func MissionDebug(format string, args ...interface{}) {
	Get(CategoryMission).Debug(format, args...)
}

// Embedding logs to the embedding category
func Embedding(format string, args ...interface{}) {
	Get(CategoryEmbedding).Info(format, args...)
}

// EmbeddingDebug logs debug to the embedding category
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}

// World logs to the world category
func World(format string, args ...interface{}) {
	Get(CategoryWorld).Info(format, args...)
}

// WorldDebug logs debug to the world category
func WorldDebug(format string, args ...interface{}) {
	Get(CategoryWorld).Debug(format, args...)
}

// Checkpoint logs to the checkpoint category
func Checkpoint(format string, args ...interface{}) {
	Get(CategoryCheckpoint).Info(format, args...)
}

// CheckpointDebug logs debug to the checkpoint category
func CheckpointDebug(format string, args ...interface{}) {
	Get(CategoryCheckpoint).Debug(format, args...)
}

// =============================================================================
// WARN / ERROR VARIANTS
// =============================================================================

// APIWarn logs a warning to the api category
func APIWarn(format string, args ...interface{}) {
	Get(CategoryAPI).Warn(format, args...)
}

// APIError logs an error to the api category
func APIError(format string, args ...interface{}) {
	Get(CategoryAPI).Error(format, args...)
}

// NexusWarn logs a warning to the nexus category
func NexusWarn(format string, args ...interface{}) {
	Get(CategoryNexus).Warn(format, args...)
}

// NexusError logs an error to the nexus category
func NexusError(format string, args ...interface{}) {
	Get(CategoryNexus).Error(format, args...)
}

// ControllerWarn logs a warning to the controller category
func ControllerWarn(format string, args ...interface{}) {
	Get(CategoryController).Warn(format, args...)
}

// ControllerError logs an error to the controller category
func ControllerError(format string, args ...interface{}) {
	Get(CategoryController).Error(format, args...)
}

// ConsciousWarn logs a warning to the conscious category
func ConsciousWarn(format string, args ...interface{}) {
	Get(CategoryConscious).Warn(format, args...)
}

// ConsciousError logs an error to the conscious category
func ConsciousError(format string, args ...interface{}) {
	Get(CategoryConscious).Error(format, args...)
}

// GovernorWarn logs a warning to the governor category
func GovernorWarn(format string, args ...interface{}) {
	Get(CategoryGovernor).Warn(format, args...)
}

// GovernorError logs an error to the governor category
func GovernorError(format string, args ...interface{}) {
	Get(CategoryGovernor).Error(format, args...)
}

// MemoryWarn logs a warning to the memory category
func MemoryWarn(format string, args ...interface{}) {
	Get(CategoryMemory).Warn(format, args...)
}

// MemoryError logs an error to the memory category
func MemoryError(format string, args ...interface{}) {
	Get(CategoryMemory).Error(format, args...)
}

// DreamWarn logs a warning to the dream category
func DreamWarn(format string, args ...interface{}) {
	Get(CategoryDream).Warn(format, args...)
}

// DreamError logs an error to the dream category
func DreamError(format string, args ...interface{}) {
	Get(CategoryDream).Error(format, args...)
}

// SkillsWarn logs a warning to the skills category
func SkillsWarn(format string, args ...interface{}) {
	Get(CategorySkills).Warn(format, args...)
}

// SkillsError logs an error to the skills category
func SkillsError(format string, args ...interface{}) {
	Get(CategorySkills).Error(format, args...)
}

// SafetyWarn logs a warning to the safety category
func SafetyWarn(format string, args ...interface{}) {
	Get(CategorySafety).Warn(format, args...)
}

// SafetyError logs an error to the safety category
func SafetyError(format string, args ...interface{}) {
	Get(CategorySafety).Error(format, args...)
}

// EvolutionWarn logs a warning to the evolution category
func EvolutionWarn(format string, args ...interface{}) {
	Get(CategoryEvolution).Warn(format, args...)
}

// EvolutionError logs an error to the evolution category
func EvolutionError(format string, args ...interface{}) {
	Get(CategoryEvolution).Error(format, args...)
}

// MissionWarn logs a warning to the mission category
func MissionWarn(format string, args ...interface{}) {
	Get(CategoryMission).Warn(format, args...)
}

// MissionError logs an error to the mission category
func MissionError(format string, args ...interface{}) {
	Get(CategoryMission).Error(format, args...)
}

// EmbeddingWarn logs a warning to the embedding category
func EmbeddingWarn(format string, args ...interface{}) {
	Get(CategoryEmbedding).Warn(format, args...)
}

// EmbeddingError logs an error to the embedding category
func EmbeddingError(format string, args ...interface{}) {
	Get(CategoryEmbedding).Error(format, args...)
}

// WorldWarn logs a warning to the world category
func WorldWarn(format string, args ...interface{}) {
	Get(CategoryWorld).Warn(format, args...)
}

// WorldError logs an error to the world category
func WorldError(format string, args ...interface{}) {
	Get(CategoryWorld).Error(format, args...)
}

// CheckpointWarn logs a warning to the checkpoint category
func CheckpointWarn(format string, args ...interface{}) {
	Get(CategoryCheckpoint).Warn(format, args...)
}

// CheckpointError logs an error to the checkpoint category
func CheckpointError(format string, args ...interface{}) {
	Get(CategoryCheckpoint).Error(format, args...)
}

// ReflexWarn logs a warning to the reflex category
func ReflexWarn(format string, args ...interface{}) {
	Get(CategoryReflex).Warn(format, args...)
}

// ReflexError logs an error to the reflex category
func ReflexError(format string, args ...interface{}) {
	Get(CategoryReflex).Error(format, args...)
}

// JudgmentWarn logs a warning to the judgment category
func JudgmentWarn(format string, args ...interface{}) {
	Get(CategoryJudgment).Warn(format, args...)
}

// JudgmentError logs an error to the judgment category
func JudgmentError(format string, args ...interface{}) {
	Get(CategoryJudgment).Error(format, args...)
}

// SessionWarn logs a warning to the session category
func SessionWarn(format string, args ...interface{}) {
	Get(CategorySession).Warn(format, args...)
}

// SessionError logs an error to the session category
func SessionError(format string, args ...interface{}) {
	Get(CategorySession).Error(format, args...)
}

// BootWarn logs a warning to the boot category
func BootWarn(format string, args ...interface{}) {
	Get(CategoryBoot).Warn(format, args...)
}

// BootError logs an error to the boot category
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}
