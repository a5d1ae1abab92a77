package domain

// Question types as stored in the directory tables.
const (
	QuestionTypeTheory   = "theory"
	QuestionTypePractice = "practice"
)

type Question struct {
	ID             int    `json:"id"`
	RoleName       string `json:"role_name"`
	CompetenceName string `json:"competence_name"`
	QuestionType   string `json:"question_type"`
	Question       string `json:"question"`
	Answer         string `json:"answer"`
	KnowledgeArea  string `json:"knowledge_area"`
	MainJob        string `json:"main_job"`
}

// Case is the optional scenario attached to a (role, competency) pair.
type Case struct {
	ID             int    `json:"id"`
	RoleName       string `json:"role_name"`
	CompetenceName string `json:"competence_name"`
	MainJob        string `json:"main_job"`
	Situation      string `json:"situation"`
	Task           string `json:"task"`
	Answer         string `json:"answer"`
	KnowledgeArea  string `json:"knowledge_area"`
}

// PromptText renders the case as a single scoring prompt.
func (c Case) PromptText() string {
	return c.Situation + "\n\n" + c.Task
}
