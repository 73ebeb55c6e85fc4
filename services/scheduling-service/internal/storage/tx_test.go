package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/apperr"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want apperr.Kind
	}{
		{fmt.Errorf("get: %w", ErrNotFound), apperr.KindNotFound},
		{fmt.Errorf("insert: %w", ErrConflict), apperr.KindConflict},
		{context.DeadlineExceeded, apperr.KindTransient},
		{errors.New("connection reset"), apperr.KindTransient},
		{apperr.InvalidTransition("op", "terminal"), apperr.KindInvalidTransition},
	}
	for _, c := range cases {
		if got := apperr.KindOf(Classify("op", c.err)); got != c.want {
			t.Fatalf("%v: expected %s, got %s", c.err, c.want, got)
		}
	}
	if Classify("op", nil) != nil {
		t.Fatal("nil must stay nil")
	}
}
