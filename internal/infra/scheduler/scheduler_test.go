package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samtaplin/llmneldacoding/internal/domain/trigger"
)

const eventsCSV = `electionId,countryName,types,year,mmdd
4021,Ghana,Presidential,2024,1207
4022, Kenya ,Legislative,2022,0809
4023,Nowhere,Presidential,2023,0230
`

func TestReadEvents(t *testing.T) {
	events, err := ReadEvents(strings.NewReader(eventsCSV))
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, Event{ElectionID: "4021", CountryName: "Ghana", Types: "Presidential", Year: "2024", MMDD: "1207"}, events[0])
	assert.Equal(t, "Kenya", events[1].CountryName)
	assert.Equal(t, "0809", events[1].MMDD)
}

func TestReadEvents_Empty(t *testing.T) {
	events, err := ReadEvents(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestBaseDate(t *testing.T) {
	d, err := BaseDate("2024", "1207")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 7, 0, 0, 0, 0, time.UTC), d)

	for _, tc := range [][2]string{{"2023", "0230"}, {"2024", "1301"}, {"24", "0101"}, {"2024", "101"}, {"abcd", "0101"}} {
		_, err := BaseDate(tc[0], tc[1])
		assert.Error(t, err, tc)
	}
}

func TestCronExpression(t *testing.T) {
	expr, err := CronExpression(time.Date(2024, 12, 5, 0, 0, 0, 0, time.UTC), 9)
	require.NoError(t, err)
	assert.Equal(t, "0 9 5 12 *", expr)

	_, err = CronExpression(time.Date(2024, 12, 5, 0, 0, 0, 0, time.UTC), 25)
	assert.Error(t, err)
}

func TestPlanJobs(t *testing.T) {
	events, err := ReadEvents(strings.NewReader(eventsCSV))
	require.NoError(t, err)

	plan := PlanJobs(events, PlanOptions{ServerURL: "https://nelda.example.org/", Hour: 9, OffsetDays: 2})

	assert.Equal(t, 6, plan.Total)
	require.Len(t, plan.Skipped, 1)
	assert.Equal(t, "4023", plan.Skipped[0].ElectionID)
	require.Len(t, plan.Jobs, 4)

	pre, post := plan.Jobs[0], plan.Jobs[1]
	assert.Equal(t, "Election_4021_Ghana_pre", pre.Name)
	assert.Equal(t, "0 9 5 12 *", pre.Schedule)
	assert.Equal(t, "https://nelda.example.org/runNelda", pre.URL)
	assert.Equal(t, "POST", pre.Method)
	assert.True(t, pre.Enabled)
	assert.Equal(t, "Election_4021_Ghana_post", post.Name)
	assert.Equal(t, "0 9 9 12 *", post.Schedule)

	var p trigger.Payload
	require.NoError(t, json.Unmarshal([]byte(post.Body), &p))
	req, err := p.Validate()
	require.NoError(t, err)
	assert.False(t, req.IsPreEvent)
	assert.Equal(t, "4021", req.ElectionID)
}

func TestPlanJobs_CrossesMonthAndYear(t *testing.T) {
	plan := PlanJobs([]Event{{ElectionID: "1", CountryName: "X", Year: "2024", MMDD: "0101"}}, PlanOptions{ServerURL: "http://h", Hour: 9, OffsetDays: 2})

	require.Len(t, plan.Jobs, 2)
	assert.Equal(t, "0 9 30 12 *", plan.Jobs[0].Schedule)
	assert.Equal(t, 2023, plan.Jobs[0].RunAt.Year())
	assert.Equal(t, "0 9 3 1 *", plan.Jobs[1].Schedule)
}

func TestJobName_Unknown(t *testing.T) {
	assert.Equal(t, "Election_unknown_unknown_post", JobName(Event{}, false))
}

type fakeAPI struct {
	mu    sync.Mutex
	names []string
	auth  []string
}

func (f *fakeAPI) handler(fail string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var job Job
		if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.names = append(f.names, job.Name)
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()

		if job.Name == fail {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte("duplicate job"))
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func jobs(n int) []Job {
	out := make([]Job, n)
	for i := range out {
		out[i] = Job{Name: "job" + string(rune('a'+i)), Schedule: "0 9 1 1 *"}
	}
	return out
}

func TestSubmit(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler("jobc"))
	defer srv.Close()

	s := &Submitter{APIURL: srv.URL, APIKey: "secret", BatchSize: 5, JobDelay: time.Millisecond, BatchDelay: time.Millisecond}
	rep, err := s.Submit(context.Background(), jobs(7))
	require.NoError(t, err)

	assert.Equal(t, 6, rep.Created)
	assert.Equal(t, []string{"jobc"}, rep.Failed)
	assert.Len(t, api.names, 7)
	assert.Equal(t, "jobg", api.names[6])
	for _, a := range api.auth {
		assert.Equal(t, "Bearer secret", a)
	}
}

func TestSubmit_StatusOKIsNotCreated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := &Submitter{APIURL: srv.URL, APIKey: "k"}
	rep, err := s.Submit(context.Background(), jobs(2))
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Created)
	assert.Len(t, rep.Failed, 2)
}

func TestSubmit_ContextCancelled(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(""))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &Submitter{APIURL: srv.URL, APIKey: "k", BatchSize: 1, BatchDelay: time.Hour}
	rep, err := s.Submit(ctx, jobs(3))
	assert.Error(t, err)
	assert.Equal(t, 0, rep.Created)
}
