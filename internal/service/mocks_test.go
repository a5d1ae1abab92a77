package service

import (
	"context"
	"errors"
	"path"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"dama-exam/internal/domain"
)

var errTest = errors.New("test failure")

// memStore is an in-memory SessionStore for tests.
type memStore struct {
	sessions map[string]*domain.Session
	answers  map[string]map[int]domain.AnswerRecord
	usage    map[string]map[int]domain.TokenUsage

	getSessionErr error
	clearCalls    int
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*domain.Session),
		answers:  make(map[string]map[int]domain.AnswerRecord),
		usage:    make(map[string]map[int]domain.TokenUsage),
	}
}

func (m *memStore) SaveSession(_ context.Context, session *domain.Session) error {
	copied := *session
	m.sessions[session.UserID] = &copied
	return nil
}

func (m *memStore) GetSession(_ context.Context, userID string) (*domain.Session, error) {
	if m.getSessionErr != nil {
		return nil, m.getSessionErr
	}
	session, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (m *memStore) SaveAnswer(_ context.Context, userID string, questionIdx int, record domain.AnswerRecord) error {
	if m.answers[userID] == nil {
		m.answers[userID] = make(map[int]domain.AnswerRecord)
	}
	m.answers[userID][questionIdx] = record
	return nil
}

func (m *memStore) GetAnswers(_ context.Context, userID string) ([]domain.AnswerRecord, error) {
	byIdx := m.answers[userID]
	indexes := make([]int, 0, len(byIdx))
	for idx := range byIdx {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	records := make([]domain.AnswerRecord, 0, len(indexes))
	for _, idx := range indexes {
		records = append(records, byIdx[idx])
	}
	return records, nil
}

func (m *memStore) SaveUsage(_ context.Context, userID string, questionIdx int, usage domain.TokenUsage) error {
	if m.usage[userID] == nil {
		m.usage[userID] = make(map[int]domain.TokenUsage)
	}
	m.usage[userID][questionIdx] = usage
	return nil
}

func (m *memStore) GetUsage(_ context.Context, userID string) ([]domain.TokenUsage, error) {
	byIdx := m.usage[userID]
	indexes := make([]int, 0, len(byIdx))
	for idx := range byIdx {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	usages := make([]domain.TokenUsage, 0, len(indexes))
	for _, idx := range indexes {
		usages = append(usages, byIdx[idx])
	}
	return usages, nil
}

func (m *memStore) Clear(_ context.Context, userID string) error {
	m.clearCalls++
	delete(m.sessions, userID)
	delete(m.answers, userID)
	delete(m.usage, userID)
	return nil
}

type fakeDirectory struct {
	roles        []string
	competencies []string
	theory       []domain.Question
	practice     []domain.Question
	caseItem     *domain.Case
}

func (f *fakeDirectory) ListRoles(_ context.Context) ([]string, error) {
	return f.roles, nil
}

func (f *fakeDirectory) ListCompetencies(_ context.Context, _ string) ([]string, error) {
	return f.competencies, nil
}

func (f *fakeDirectory) ListQuestions(_ context.Context, _, _, questionType string) ([]domain.Question, error) {
	if questionType == domain.QuestionTypeTheory {
		return f.theory, nil
	}
	return f.practice, nil
}

func (f *fakeDirectory) GetCase(_ context.Context, _, _ string) (*domain.Case, error) {
	return f.caseItem, nil
}

type fakeResults struct {
	resultID    int
	saveErr     error
	saved       []domain.TestResult
	savedItems  [][]domain.AnswerRecord
	analytics   []*domain.Analytics
	reportPaths map[int]string
}

func (f *fakeResults) SaveResult(_ context.Context, result domain.TestResult, answers []domain.AnswerRecord, analytics *domain.Analytics) (int, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.saved = append(f.saved, result)
	f.savedItems = append(f.savedItems, answers)
	f.analytics = append(f.analytics, analytics)
	return f.resultID, nil
}

func (f *fakeResults) SetReportPath(_ context.Context, resultID int, path string) error {
	if f.reportPaths == nil {
		f.reportPaths = make(map[int]string)
	}
	f.reportPaths[resultID] = path
	return nil
}

// staticSettings satisfies settingsSource with a fixed snapshot.
type staticSettings struct {
	cfg JudgeConfig
}

func (s staticSettings) Load(_ context.Context) JudgeConfig { return s.cfg }

type fakeScorer struct {
	outcomes []domain.ScoringOutcome
	requests []ScoreRequest
}

func (f *fakeScorer) Score(_ context.Context, req ScoreRequest) domain.ScoringOutcome {
	f.requests = append(f.requests, req)
	call := len(f.requests) - 1
	if call >= len(f.outcomes) {
		call = len(f.outcomes) - 1
	}
	return f.outcomes[call]
}

// panicScorer simulates a scoring path dying mid-call, e.g. a bug in
// the judge client.
type panicScorer struct{}

func (panicScorer) Score(_ context.Context, _ ScoreRequest) domain.ScoringOutcome {
	panic("judge client blew up")
}

type fakeReporter struct {
	result *ReportResult
	err    error
	calls  int
}

func (f *fakeReporter) Finalize(_ context.Context, _ string) (*ReportResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeExporter struct {
	object   string
	err      error
	uploaded [][]byte
}

func (f *fakeExporter) Upload(_ context.Context, _ string, data []byte) (string, error) {
	f.uploaded = append(f.uploaded, data)
	if f.err != nil {
		return "", f.err
	}
	return f.object, nil
}

func (f *fakeExporter) URLFor(object string) string {
	return "http://storage.local/user-reports/" + object
}

// fakeRedis implements redisCommander over a plain map.
type fakeRedis struct {
	data map[string]string

	getErr error
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case string:
		f.data[key] = v
	case []byte:
		f.data[key] = string(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	val, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var removed int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (f *fakeRedis) Scan(_ context.Context, _ uint64, match string, _ int64) *redis.ScanCmd {
	var keys []string
	for key := range f.data {
		if ok, _ := path.Match(match, key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return redis.NewScanCmdResult(keys, 0, nil)
}
