package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(submissions.WithLabelValues("confirmed"))
	IncSubmission("confirmed")
	assert.Equal(t, before+1, testutil.ToFloat64(submissions.WithLabelValues("confirmed")))

	noops := testutil.ToFloat64(submitNoops)
	IncSubmitNoop()
	assert.Equal(t, noops+1, testutil.ToFloat64(submitNoops))

	conflicts := testutil.ToFloat64(conflictsDetected)
	IncConflictDetected()
	assert.Equal(t, conflicts+1, testutil.ToFloat64(conflictsDetected))

	IncHTTP("rooms.get", "200")
	assert.Equal(t, float64(1), testutil.ToFloat64(httpRequests.WithLabelValues("rooms.get", "200")))

	IncRoomCache("hit")
	ObserveAPI("get_room", time.Now())
	assert.Equal(t, 1, testutil.CollectAndCount(apiLatency))
}
