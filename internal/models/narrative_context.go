package models

// StoryStage - стадия повествовательной арки.
type StoryStage string

const (
	StageSetup         StoryStage = "setup"
	StageRisingAction  StoryStage = "rising_action"
	StageClimax        StoryStage = "climax"
	StageFallingAction StoryStage = "falling_action"
	StageResolution    StoryStage = "resolution"
)

// stageOrder задаёт порядок стадий для сравнения.
var stageOrder = map[StoryStage]int{
	StageSetup:         0,
	StageRisingAction:  1,
	StageClimax:        2,
	StageFallingAction: 3,
	StageResolution:    4,
}

// Before сообщает, предшествует ли стадия s стадии other в арке.
func (s StoryStage) Before(other StoryStage) bool {
	return stageOrder[s] < stageOrder[other]
}

// ThreadStatus - статус сюжетной линии.
type ThreadStatus string

const (
	ThreadIntroduced ThreadStatus = "introduced"
	ThreadDeveloping ThreadStatus = "developing"
	ThreadResolved   ThreadStatus = "resolved"
)

// ImpactLevel - оценка веса сделанного выбора.
type ImpactLevel string

const (
	ImpactLow    ImpactLevel = "low"
	ImpactMedium ImpactLevel = "medium"
	ImpactHigh   ImpactLevel = "high"
)

// NarrativeContext - производное описание состояния сюжета, которое
// агрегатор извлекает из истории сегментов и передаёт композитору промптов.
type NarrativeContext struct {
	StoryArc        StoryArc         `json:"story_arc"`
	Characters      CharacterContext `json:"characters"`
	PlotThreads     []PlotThread     `json:"plot_threads,omitempty"`
	WorldBuilding   WorldBuilding    `json:"world_building"`
	Themes          []string         `json:"themes,omitempty"`
	PreviousChoices []PreviousChoice `json:"previous_choices,omitempty"`
}

// StoryArc описывает положение истории в пятиактной структуре.
type StoryArc struct {
	Stage              StoryStage `json:"stage"`
	ProgressPercentage int        `json:"progress_percentage"`
}

// CharacterContext - извлечённые сведения о персонажах.
type CharacterContext struct {
	Protagonist Protagonist `json:"protagonist"`
	Supporting  []string    `json:"supporting,omitempty"`
}

// Protagonist - эвристический портрет главного героя.
type Protagonist struct {
	Traits      []string `json:"traits,omitempty"`
	Development []string `json:"development,omitempty"`
	CurrentGoal string   `json:"current_goal"`
}

// PlotThread - одна отслеживаемая сюжетная линия.
type PlotThread struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Status      ThreadStatus `json:"status"`
	Importance  string       `json:"importance"`
}

// WorldBuilding - сведения о мире истории.
type WorldBuilding struct {
	Setting    string   `json:"setting"`
	Rules      []string `json:"rules,omitempty"`
	Atmosphere string   `json:"atmosphere"`
	Conflicts  []string `json:"conflicts,omitempty"`
}

// PreviousChoice - сделанный ранее выбор и его классифицированные последствия.
type PreviousChoice struct {
	Choice       string      `json:"choice"`
	Consequences []string    `json:"consequences,omitempty"`
	ImpactLevel  ImpactLevel `json:"impact_level"`
}
