package models

// ResponseValues are copied onto both the input and the selected response
// before learning.
type ResponseValues struct {
	Tags         []string `json:"tags,omitempty"`
	Conversation string   `json:"conversation,omitempty"`
	Persona      string   `json:"persona,omitempty"`
}

// RespondRequest is the body of POST /respond.
type RespondRequest struct {
	Text               string          `json:"text"`
	Conversation       string          `json:"conversation,omitempty"`
	Persona            string          `json:"persona,omitempty"`
	InResponseTo       string          `json:"inResponseTo,omitempty"`
	Tags               []string        `json:"tags,omitempty"`
	BannedFromLearning bool            `json:"bannedFromLearning,omitempty"`
	CheckSpelling      *bool           `json:"checkSpelling,omitempty"`
	PersistValues      *ResponseValues `json:"persistValuesToResponse,omitempty"`
	// SelectionTags narrows candidate search to statements carrying any of these tags.
	SelectionTags []string `json:"selectionTags,omitempty"`
}

// SpellingEnabled defaults to true when the caller did not say otherwise.
func (r *RespondRequest) SpellingEnabled() bool {
	return r.CheckSpelling == nil || *r.CheckSpelling
}

// RespondResponse is the reply record returned to callers.
type RespondResponse struct {
	Text         string   `json:"text"`
	InResponseTo string   `json:"inResponseTo"`
	Conversation string   `json:"conversation,omitempty"`
	Persona      string   `json:"persona"`
	Confidence   float64  `json:"confidence"`
	Tags         []string `json:"tags"`
}

// NewRespondResponse projects a statement onto the reply record.
func NewRespondResponse(s *Statement) *RespondResponse {
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	return &RespondResponse{
		Text:         s.Text,
		InResponseTo: s.InResponseTo,
		Conversation: s.Conversation,
		Persona:      s.Persona,
		Confidence:   s.Confidence,
		Tags:         tags,
	}
}

// LearnRequest is the body of POST /learn.
type LearnRequest struct {
	Text         string   `json:"text"`
	InResponseTo string   `json:"inResponseTo,omitempty"`
	Conversation string   `json:"conversation,omitempty"`
	Persona      string   `json:"persona,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// TrainRequest is the body of POST /train. Each conversation is an ordered
// list of utterances, each one a reply to the previous.
type TrainRequest struct {
	Conversations [][]string `json:"conversations"`
	Tags          []string   `json:"tags,omitempty"`
}

type TrainResponse struct {
	Conversations int `json:"conversations"`
	Statements    int `json:"statements"`
}

// StatementList is returned from GET /statements.
type StatementList struct {
	Statements []*Statement `json:"statements"`
	Total      int          `json:"total"`
}

type StatsResponse struct {
	Statements int      `json:"statements"`
	BotName    string   `json:"botName"`
	ReadOnly   bool     `json:"readOnly"`
	Adapters   []string `json:"adapters"`
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status         string       `json:"status"`
	Annotation     ServiceCheck `json:"annotation"`
	DB             ServiceCheck `json:"db"`
	StatementCount int          `json:"statementCount"`
}

type ServiceCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the JSON body written for every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// LearnResponse is returned from POST /learn. Skipped is set when there was
// no previous statement to learn the text as a reply to.
type LearnResponse struct {
	Statement *Statement `json:"statement,omitempty"`
	Skipped   bool       `json:"skipped,omitempty"`
}
