package advisor

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"vending-backend/internal/db"
	"vending-backend/internal/model"
	"vending-backend/internal/store"
)

func newAdvisor(t *testing.T, ttl time.Duration) *Service {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(testDB))

	products := []model.Product{
		{ID: 1, Name: "Turmeric Tonic", Price: 15000},
		{ID: 2, Name: "Rice Ginger Drink", Price: 12000},
		{ID: 3, Name: "Temulawak Extract", Price: 18000},
		{ID: 4, Name: "Herbal Stamina Mix", Price: 20000},
	}
	for i := range products {
		require.NoError(t, testDB.Create(&products[i]).Error)
	}

	return NewService(store.NewGormStore(testDB), ttl)
}

// answerAll walks a session answering yes exactly for the given question ids.
func answerAll(t *testing.T, svc *Service, sessionID string, yesQuestions ...string) StepResult {
	yes := make(map[string]bool, len(yesQuestions))
	for _, q := range yesQuestions {
		yes[q] = true
	}

	var step StepResult
	for _, q := range questions {
		var err error
		step, err = svc.Answer(context.Background(), sessionID, q.ID, yes[q.ID])
		require.NoError(t, err)
	}
	return step
}

func TestAdvisor_FullSession(t *testing.T) {
	svc := newAdvisor(t, time.Minute)

	start := svc.Start()
	require.NotEmpty(t, start.SessionID)
	require.NotNil(t, start.NextQuestion)
	assert.Equal(t, "Q1", start.NextQuestion.ID)
	assert.False(t, start.IsComplete)

	final := answerAll(t, svc, start.SessionID, "Q1")
	assert.True(t, final.IsComplete)
	require.NotNil(t, final.Result)
	assert.Equal(t, int64(1), final.Result.ProductID)
	assert.Equal(t, "Turmeric Tonic", final.Result.ProductName)
	assert.Equal(t, "Menstrual pain", final.Result.Condition)

	// The finished session stays retrievable until its TTL.
	result, err := svc.Result(context.Background(), start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, final.Result.ProductID, result.ProductID)
}

func TestAdvisor_RuleOrderPicksFirstMatch(t *testing.T) {
	svc := newAdvisor(t, time.Minute)
	start := svc.Start()

	// Both a product-1 and a product-4 symptom: earlier rule wins.
	final := answerAll(t, svc, start.SessionID, "Q2", "Q9")
	require.NotNil(t, final.Result)
	assert.Equal(t, int64(1), final.Result.ProductID)
}

func TestAdvisor_NoSymptomsNoMatch(t *testing.T) {
	svc := newAdvisor(t, time.Minute)
	start := svc.Start()

	final := answerAll(t, svc, start.SessionID)
	require.NotNil(t, final.Result)
	assert.Zero(t, final.Result.ProductID)
	assert.Equal(t, "No match", final.Result.ProductName)
}

func TestAdvisor_AnswerOutOfOrder(t *testing.T) {
	svc := newAdvisor(t, time.Minute)
	start := svc.Start()

	_, err := svc.Answer(context.Background(), start.SessionID, "Q5", true)
	assert.ErrorIs(t, err, ErrQuestionMismatch)
}

func TestAdvisor_ResultBeforeFinish(t *testing.T) {
	svc := newAdvisor(t, time.Minute)
	start := svc.Start()

	_, err := svc.Result(context.Background(), start.SessionID)
	assert.ErrorIs(t, err, ErrSessionActive)
}

func TestAdvisor_UnknownSession(t *testing.T) {
	svc := newAdvisor(t, time.Minute)

	_, err := svc.Answer(context.Background(), "nope", "Q1", true)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAdvisor_SessionExpires(t *testing.T) {
	svc := newAdvisor(t, 20*time.Millisecond)
	start := svc.Start()

	time.Sleep(50 * time.Millisecond)

	_, err := svc.Answer(context.Background(), start.SessionID, "Q1", true)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
