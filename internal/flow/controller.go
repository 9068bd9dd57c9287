package flow

import "math"

// Phase is the coarse position of a session in its flow.
type Phase string

const (
	PhaseEmailCapture Phase = "email_capture"
	PhasePersonalInfo Phase = "personal_info"
	PhaseQuestions    Phase = "questions"
	PhaseAds          Phase = "ads"
	PhaseComplete     Phase = "complete"
)

// Action is the next thing the UI should render.
type Action string

const (
	ActionEmailCapture Action = "email_capture"
	ActionPersonalInfo Action = "personal_info"
	ActionQuestion     Action = "question"
	ActionAd           Action = "ad"
	ActionComplete     Action = "complete"
)

// State is the externalized per-session progress. It is persisted between
// requests and restored with SetState.
type State struct {
	QuestionsAnswered int   `json:"questionsAnswered"`
	AdsShown          int   `json:"adsShown"`
	CurrentPhase      Phase `json:"currentPhase"`
	QuestionBatch     int   `json:"questionBatch"`
	ShouldShowAd      bool  `json:"shouldShowAd"`
	IsComplete        bool  `json:"isComplete"`
}

// InitialState is the state of a brand new session.
func InitialState(cfg Config) State {
	phase := PhaseQuestions
	if cfg.RequireEmail {
		phase = PhaseEmailCapture
	}
	return State{CurrentPhase: phase}
}

// Progress summarizes a session for progress bars and dashboards.
type Progress struct {
	QuestionsCompleted int   `json:"questionsCompleted"`
	TotalQuestions     int   `json:"totalQuestions"`
	AdsShown           int   `json:"adsShown"`
	TotalAds           int   `json:"totalAds"`
	CompletionRate     int   `json:"completionRate"`
	Phase              Phase `json:"phase"`
}

// Controller decides, step by step, whether a session sees a question, an
// ad or completion. It is single-threaded and synchronous; callers advance
// it only through the Complete* methods.
type Controller struct {
	config    Config
	questions []Question
	state     State
}

// NewController orders the questions once, by campaign bid priority, and
// starts a fresh session state.
func NewController(cfg Config, questions []Question, campaigns []Campaign) *Controller {
	cfg = cfg.normalized()
	return &Controller{
		config:    cfg,
		questions: OrderQuestions(questions, campaigns, cfg.MaxQuestions),
		state:     InitialState(cfg),
	}
}

// ResumeController rebuilds a controller from a session's snapshot. The
// question order is taken as is; campaigns are not consulted again.
func ResumeController(cfg Config, ordered []Question, st State) *Controller {
	return &Controller{
		config:    cfg.normalized(),
		questions: ordered,
		state:     st,
	}
}

func (c *Controller) Config() Config { return c.config }

// Questions returns the fixed question order for this controller.
func (c *Controller) Questions() []Question { return c.questions }

func (c *Controller) State() State { return c.state }

func (c *Controller) SetState(s State) { c.state = s }

func (c *Controller) totalQuestions() int {
	return min(c.config.MaxQuestions, len(c.questions))
}

func (c *Controller) questionsRemain() bool {
	n := c.state.QuestionsAnswered
	return n < len(c.questions) && n < c.config.MaxQuestions
}

func (c *Controller) adsRemain() bool {
	return c.state.AdsShown < c.config.MaxAds
}

func (c *Controller) finish() Action {
	c.state.IsComplete = true
	return ActionComplete
}

// NextAction returns what to render next. It may move the session into the
// ads phase or mark it complete; once complete it keeps returning complete.
func (c *Controller) NextAction() Action {
	if c.state.IsComplete {
		return ActionComplete
	}

	switch c.state.CurrentPhase {
	case PhaseEmailCapture:
		return ActionEmailCapture
	case PhasePersonalInfo:
		return ActionPersonalInfo
	}

	if c.state.QuestionsAnswered >= c.totalQuestions() {
		if c.adsRemain() {
			c.state.CurrentPhase = PhaseAds
			return ActionAd
		}
		return c.finish()
	}

	switch c.config.Type {
	case TypeMinimal:
		if c.state.ShouldShowAd && c.adsRemain() {
			return ActionAd
		}
	case TypeProgressive:
		if c.batchFinished() && c.adsRemain() {
			return ActionAd
		}
	}

	if c.questionsRemain() {
		return ActionQuestion
	}
	if c.adsRemain() {
		return ActionAd
	}
	return c.finish()
}

// batchFinished reports whether a full batch of questions was just answered
// and its ad has not been shown yet. QuestionBatch counts the batch ads
// already shown.
func (c *Controller) batchFinished() bool {
	per := c.config.QuestionsPerAd
	n := c.state.QuestionsAnswered
	if per <= 0 || n == 0 || n%per != 0 {
		return false
	}
	return c.state.QuestionBatch < n/per
}

// CompleteEmailCapture advances email_capture to personal_info.
func (c *Controller) CompleteEmailCapture() {
	if c.state.CurrentPhase == PhaseEmailCapture {
		c.state.CurrentPhase = PhasePersonalInfo
	}
}

// CompletePersonalInfo advances personal_info to questions.
func (c *Controller) CompletePersonalInfo() {
	if c.state.CurrentPhase == PhasePersonalInfo {
		c.state.CurrentPhase = PhaseQuestions
	}
}

func (c *Controller) CompleteQuestion() {
	if c.state.IsComplete {
		return
	}
	c.state.QuestionsAnswered++
	if c.config.Type == TypeMinimal {
		c.state.ShouldShowAd = true
	}
}

func (c *Controller) CompleteAd() {
	if c.state.IsComplete {
		return
	}
	c.state.AdsShown++
	c.state.ShouldShowAd = false
	if c.config.Type == TypeProgressive {
		c.state.QuestionBatch++
	}
}

// CurrentQuestion returns the question at the session's position, or false
// once every question has been answered.
func (c *Controller) CurrentQuestion() (Question, bool) {
	i := c.state.QuestionsAnswered
	if i < 0 || i >= len(c.questions) {
		return Question{}, false
	}
	return c.questions[i], true
}

// Progress weights an ad as half a question.
func (c *Controller) Progress() Progress {
	total := c.totalQuestions()
	p := Progress{
		QuestionsCompleted: c.state.QuestionsAnswered,
		TotalQuestions:     total,
		AdsShown:           c.state.AdsShown,
		TotalAds:           c.config.MaxAds,
		Phase:              c.state.CurrentPhase,
	}

	denominator := float64(total) + 0.5*float64(c.config.MaxAds)
	if denominator <= 0 {
		if c.state.IsComplete {
			p.CompletionRate = 100
		}
		return p
	}

	done := float64(c.state.QuestionsAnswered) + 0.5*float64(c.state.AdsShown)
	rate := int(math.Floor(100*done/denominator + 0.5))
	p.CompletionRate = min(rate, 100)
	return p
}
