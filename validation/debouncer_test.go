package validation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/benefits-access-api/models"
	"github.com/linesmerrill/benefits-access-api/redemption"
	"github.com/linesmerrill/benefits-access-api/validation"
)

func TestCoalescer_OneLookupForConcurrentCallers(t *testing.T) {
	store := newStore(t)
	codes := &countingCodes{AccessCodeDatabase: store.AccessCodes(), delay: 50 * time.Millisecond}
	coalescer := validation.NewCoalescer(newValidator(store, codes), time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := coalescer.Validate(context.Background(), "wxyz-5678")
			assert.NoError(t, err)
			assert.True(t, result.Valid)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), codes.lookups.Load())

	// a completed lookup is not reused
	_, err := coalescer.Validate(context.Background(), "WXYZ-5678")
	require.NoError(t, err)
	assert.Equal(t, int32(2), codes.lookups.Load())
}

func TestCoalescer_RedeemedCodeIsNotFoundRightAway(t *testing.T) {
	store := newStore(t)
	coalescer := validation.NewCoalescer(newValidator(store, store.AccessCodes()), 10*time.Hour)

	result, err := coalescer.Validate(context.Background(), "WXYZ-5678")
	require.NoError(t, err)
	require.True(t, result.Valid)

	service := redemption.NewService(store, store.AccessCodes(), store.Companies(), store.Employees())
	service.Now = func() time.Time { return now }
	_, err = service.Redeem(context.Background(), redemption.Request{Code: "WXYZ-5678", PersonID: "person-a"})
	require.NoError(t, err)

	result, err = coalescer.Validate(context.Background(), "wxyz-5678")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, validation.ReasonNotFound, result.Reason)
}

func TestCoalescer_RevokedCodeIsNotFoundRightAway(t *testing.T) {
	store := newStore(t)
	coalescer := validation.NewCoalescer(newValidator(store, store.AccessCodes()), 10*time.Hour)

	result, err := coalescer.Validate(context.Background(), "WXYZ-5678")
	require.NoError(t, err)
	require.True(t, result.Valid)

	_, err = store.AccessCodes().Transition(context.Background(), "live", models.CodeStatusPending, models.CodeStatusRevoked,
		models.CodeTransition{At: now, Actor: "hr-1"})
	require.NoError(t, err)

	result, err = coalescer.Validate(context.Background(), "WXYZ-5678")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, validation.ReasonNotFound, result.Reason)
}

func TestCoalescer_CallerCanGiveUp(t *testing.T) {
	store := newStore(t)
	codes := &countingCodes{AccessCodeDatabase: store.AccessCodes(), delay: 200 * time.Millisecond}
	coalescer := validation.NewCoalescer(newValidator(store, codes), time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := coalescer.Validate(ctx, "WXYZ-5678")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDebouncer_LatestInputWins(t *testing.T) {
	store := newStore(t)
	codes := &countingCodes{AccessCodeDatabase: store.AccessCodes()}
	coalescer := validation.NewCoalescer(newValidator(store, codes), 100*time.Millisecond)
	debouncer := validation.NewDebouncer(coalescer)

	inputs := []string{"WXYZ-5670", "WXYZ-5679", "WXYZ-5678"}
	errs := make([]error, len(inputs))
	results := make([]validation.Result, len(inputs))

	var wg sync.WaitGroup
	for i, input := range inputs {
		wg.Add(1)
		go func(i int, input string) {
			defer wg.Done()
			results[i], errs[i] = debouncer.Validate(context.Background(), input)
		}(i, input)
		// keystrokes arrive faster than the window
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	last := len(inputs) - 1
	require.NoError(t, errs[last])
	assert.True(t, results[last].Valid)
	assert.Equal(t, "WXYZ-5678", results[last].Input)
	for i := 0; i < last; i++ {
		assert.True(t, errors.Is(errs[i], validation.ErrSuperseded), "call %d: %v", i, errs[i])
	}
	assert.Equal(t, int32(1), codes.lookups.Load())
}

func TestDebouncer_SupersededCallNeverReachesTheStore(t *testing.T) {
	store := newStore(t)
	codes := &countingCodes{AccessCodeDatabase: store.AccessCodes()}
	coalescer := validation.NewCoalescer(newValidator(store, codes), 100*time.Millisecond)
	debouncer := validation.NewDebouncer(coalescer)

	done := make(chan error, 1)
	go func() {
		_, err := debouncer.Validate(context.Background(), "NOPE-NOPE")
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	result, err := debouncer.Validate(context.Background(), "WXYZ-5678")
	require.NoError(t, err)
	assert.True(t, result.Valid)

	assert.ErrorIs(t, <-done, validation.ErrSuperseded)
	assert.Equal(t, int32(1), codes.lookups.Load())
}
