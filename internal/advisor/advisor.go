package advisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"vending-backend/internal/model"
	"vending-backend/internal/store"
)

var (
	ErrSessionNotFound  = errors.New("session not found or expired")
	ErrQuestionMismatch = errors.New("answer does not match the current question")
	ErrSessionActive    = errors.New("session has unanswered questions")
)

// Question is one yes/no prompt shown to the buyer.
type Question struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Symptom string `json:"-"`
}

// Rule maps collected symptoms to a recommended product. A rule fires when
// any of its symptoms was answered yes; rules are evaluated in order and the
// first match wins.
type Rule struct {
	ID        string
	Symptoms  []string
	Condition string
	ProductID int64
}

// Questions asked in order. Symptom codes feed the rule table.
var questions = []Question{
	{ID: "Q1", Text: "Are you experiencing menstrual cramps?", Symptom: "S1"},
	{ID: "Q2", Text: "Do you have digestive complaints such as bloating?", Symptom: "S2"},
	{ID: "Q3", Text: "Do you need help keeping blood sugar in check?", Symptom: "S3"},
	{ID: "Q4", Text: "Has your immune system felt weak lately?", Symptom: "S4"},
	{ID: "Q5", Text: "Has your appetite decreased?", Symptom: "S5"},
	{ID: "Q6", Text: "Do you have a cough or blocked nose?", Symptom: "S6"},
	{ID: "Q7", Text: "Do you have liver health concerns?", Symptom: "S7"},
	{ID: "Q8", Text: "Are you looking for antioxidant support?", Symptom: "S8"},
	{ID: "Q9", Text: "Has your stamina dropped?", Symptom: "S9"},
	{ID: "Q10", Text: "Do you have muscle aches or lower back pain?", Symptom: "S10"},
}

var rules = []Rule{
	{ID: "R1", Symptoms: []string{"S1"}, Condition: "Menstrual pain", ProductID: 1},
	{ID: "R2", Symptoms: []string{"S2"}, Condition: "Digestive trouble", ProductID: 1},
	{ID: "R3", Symptoms: []string{"S3"}, Condition: "Blood sugar control", ProductID: 1},
	{ID: "R4", Symptoms: []string{"S4"}, Condition: "Weak immune system", ProductID: 2},
	{ID: "R5", Symptoms: []string{"S5"}, Condition: "Low appetite", ProductID: 2},
	{ID: "R6", Symptoms: []string{"S6"}, Condition: "Respiratory complaints", ProductID: 2},
	{ID: "R7", Symptoms: []string{"S7"}, Condition: "Liver health", ProductID: 3},
	{ID: "R8", Symptoms: []string{"S8"}, Condition: "Antioxidant support", ProductID: 3},
	{ID: "R9", Symptoms: []string{"S9"}, Condition: "Low stamina", ProductID: 4},
	{ID: "R10", Symptoms: []string{"S10"}, Condition: "Muscle aches", ProductID: 4},
}

// session holds per-buyer progress. Sessions live in the service's cache and
// expire via TTL; they are never shared across service instances.
type session struct {
	Symptoms []string
	Index    int
}

// QuestionView is a question as returned to API clients.
type QuestionView struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// StepResult is the response to starting a session or answering a question.
type StepResult struct {
	SessionID    string          `json:"sessionId"`
	IsComplete   bool            `json:"isComplete"`
	NextQuestion *QuestionView   `json:"nextQuestion,omitempty"`
	Result       *Recommendation `json:"result,omitempty"`
}

// Recommendation is the outcome of a finished session.
type Recommendation struct {
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Condition   string `json:"condition"`
	Reason      string `json:"reason"`
}

// Service runs the guided product advisor. Each instance owns its own
// session cache.
type Service struct {
	store    store.Store
	sessions *cache.Cache
}

func NewService(s store.Store, sessionTTL time.Duration) *Service {
	return &Service{
		store:    s,
		sessions: cache.New(sessionTTL, 2*sessionTTL),
	}
}

// Start creates a session and returns the first question.
func (s *Service) Start() StepResult {
	id := uuid.NewString()
	s.sessions.SetDefault(id, &session{Index: 0})
	return StepResult{
		SessionID:    id,
		NextQuestion: viewOf(questions[0]),
	}
}

// Answer records a yes/no answer for the session's current question and
// advances it. When the last question is answered the rules are evaluated and
// the result is embedded in the response.
func (s *Service) Answer(ctx context.Context, sessionID, questionID string, yes bool) (StepResult, error) {
	v, ok := s.sessions.Get(sessionID)
	if !ok {
		return StepResult{}, ErrSessionNotFound
	}
	sess := v.(*session)

	if sess.Index >= len(questions) || questions[sess.Index].ID != questionID {
		return StepResult{}, ErrQuestionMismatch
	}

	if yes {
		sess.Symptoms = append(sess.Symptoms, questions[sess.Index].Symptom)
	}
	sess.Index++
	s.sessions.SetDefault(sessionID, sess)

	if sess.Index < len(questions) {
		return StepResult{
			SessionID:    sessionID,
			NextQuestion: viewOf(questions[sess.Index]),
		}, nil
	}

	rec, err := s.recommend(ctx, sess.Symptoms)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{SessionID: sessionID, IsComplete: true, Result: rec}, nil
}

// Result returns the recommendation for a finished session. Answering the
// last question already returns it; this lets clients re-fetch before the
// session expires.
func (s *Service) Result(ctx context.Context, sessionID string) (*Recommendation, error) {
	v, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess := v.(*session)
	if sess.Index < len(questions) {
		return nil, ErrSessionActive
	}
	return s.recommend(ctx, sess.Symptoms)
}

func (s *Service) recommend(ctx context.Context, symptoms []string) (*Recommendation, error) {
	rule := match(symptoms)
	if rule == nil {
		return &Recommendation{
			ProductName: "No match",
			Reason:      "None of the stocked products fit the symptoms you selected.",
		}, nil
	}

	var product model.Product
	err := s.store.DB().WithContext(ctx).First(&product, rule.ProductID).Error
	if err != nil {
		log.Printf("Advisor rule %s points at missing product %d: %v", rule.ID, rule.ProductID, err)
		return nil, err
	}

	return &Recommendation{
		ProductID:   product.ID,
		ProductName: product.Name,
		Condition:   rule.Condition,
		Reason:      fmt.Sprintf("%s is a good fit for %s.", product.Name, rule.Condition),
	}, nil
}

// match walks the rule table in order and returns the first rule whose
// symptom list intersects the collected symptoms.
func match(symptoms []string) *Rule {
	if len(symptoms) == 0 {
		return nil
	}
	have := make(map[string]bool, len(symptoms))
	for _, s := range symptoms {
		have[s] = true
	}
	for i := range rules {
		for _, code := range rules[i].Symptoms {
			if have[code] {
				return &rules[i]
			}
		}
	}
	return nil
}

func viewOf(q Question) *QuestionView {
	return &QuestionView{ID: q.ID, Text: q.Text, Options: []string{"yes", "no"}}
}

// AllQuestions returns the question list for admin inspection.
func AllQuestions() []Question { return questions }

// AllRules returns the rule table for admin inspection.
func AllRules() []Rule { return rules }
