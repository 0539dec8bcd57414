package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketledger/pocketledger/internal/auth"
	"github.com/pocketledger/pocketledger/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) Enqueue(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }
func (s stubInspector) Close() error                                 { return nil }

func TestJobsTrigger(t *testing.T) {
	enq := &stubEnqueuer{}
	c := &JobsCLI{client: enq, inspector: stubInspector{}}
	var out, errOut bytes.Buffer

	code := c.Run(context.Background(), []string{"trigger", jobs.TaskLedgerIntegrityScan}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, jobs.TaskLedgerIntegrityScan, enq.tasks[0].Type())
	assert.Contains(t, out.String(), "id=t-1")

	errOut.Reset()
	code = c.Run(context.Background(), []string{"trigger", "mail:send"}, &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "unknown task")
}

func TestJobsInspect(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{info: &asynq.QueueInfo{Pending: 3, Retry: 1}}}
	var out, errOut bytes.Buffer
	require.Equal(t, 0, c.Run(context.Background(), []string{"inspect"}, &out, &errOut))
	assert.Contains(t, out.String(), `"pending": 3`)

	c = &JobsCLI{inspector: stubInspector{err: errors.New("redis down")}}
	assert.Equal(t, 1, c.Run(context.Background(), []string{"inspect"}, &out, &errOut))
	assert.Equal(t, 2, c.Run(context.Background(), nil, &out, &errOut))
}

func TestTokenCommand(t *testing.T) {
	a := auth.NewAuthenticator("secret", "pocketledger", nil)
	var out, errOut bytes.Buffer
	require.Equal(t, 0, TokenCommand(a, []string{"-ttl", "1h", "user-7"}, &out, &errOut))

	owner, err := a.Parse(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "user-7", owner)

	assert.Equal(t, 2, TokenCommand(a, nil, &out, &errOut))
}
