package catalog

import (
	"context"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/common/httpclient"
	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog/query"
)

// RegisterHarvestPlan registers (or replaces) a harvest source configuration.
// Plans are never mutated in place; re-registering a plan identifier replaces
// the plan wholesale.
func (c *Client) RegisterHarvestPlan(ctx context.Context, plan HarvestPlan) (*HarvestPlan, error) {
	if strings.TrimSpace(plan.Identifier) == "" {
		return nil, fieldError("identifier", "must not be empty")
	}
	body, err := json.Marshal(map[string]HarvestPlan{"plan": plan})
	if err != nil {
		return nil, ErrValidation.MsgErr("invalid harvest plan", err)
	}
	_, err = c.mutate(ctx, MutationRegisterHarvestPlan, HarvestVars{PlanID: plan.Identifier}, httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   path.Join(harvestBase, "plans"),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListHarvestPlans lists the identifiers of every registered harvest plan.
func (c *Client) ListHarvestPlans(ctx context.Context) ([]string, error) {
	key := query.Key{"harvest", "plans"}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(harvestBase, "plans"),
	}, decodeValue[[]string])
	if err != nil {
		return nil, err
	}
	return *v.(*[]string), nil
}

// GetHarvestPlan fetches one harvest plan by identifier.
func (c *Client) GetHarvestPlan(ctx context.Context, planID string) (*HarvestPlan, error) {
	if strings.TrimSpace(planID) == "" {
		return nil, fieldError("planID", "must not be empty")
	}
	key := query.Key{"harvest", "plans", "single", planID}
	v, err := c.getJSON(ctx, key, c.metadataStale(), httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(harvestBase, "plans", planID),
	}, decodeValue[HarvestPlan])
	if err != nil {
		return nil, err
	}
	return v.(*HarvestPlan), nil
}

// RunHarvest starts an execution of a harvest plan. The run proceeds
// asynchronously; observe it with SubscribeHarvestRun or GetHarvestRun.
func (c *Client) RunHarvest(ctx context.Context, planID string) (*HarvestRun, error) {
	if strings.TrimSpace(planID) == "" {
		return nil, fieldError("planID", "must not be empty")
	}
	body, err := json.Marshal(map[string]string{"plan_id": planID})
	if err != nil {
		return nil, ErrValidation.MsgErr("invalid harvest run request", err)
	}
	resp, err := c.mutate(ctx, MutationRunHarvest, HarvestVars{PlanID: planID}, httpclient.RequestOptions{
		Method: http.MethodPost,
		Path:   path.Join(harvestBase, "runs"),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	run := &HarvestRun{PlanID: planID, Status: HarvestQueued}
	if len(resp) > 0 {
		_ = json.Unmarshal(resp, run)
	}
	return run, nil
}

// ListHarvestRuns lists the run identifiers recorded for a harvest plan. Run
// listings are job state: every observation refetches.
func (c *Client) ListHarvestRuns(ctx context.Context, planID string) ([]string, error) {
	if strings.TrimSpace(planID) == "" {
		return nil, fieldError("planID", "must not be empty")
	}
	key := query.Key{"harvest", "runs", planID}
	v, err := c.getJSON(ctx, key, jobStale, httpclient.RequestOptions{
		Method:      http.MethodGet,
		Path:        path.Join(harvestBase, "runs"),
		QueryParams: map[string]string{"plan": planID},
	}, decodeValue[[]string])
	if err != nil {
		return nil, err
	}
	return *v.(*[]string), nil
}

// GetHarvestRun fetches the state of one harvest run.
func (c *Client) GetHarvestRun(ctx context.Context, runID string) (*HarvestRun, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fieldError("runID", "must not be empty")
	}
	key := query.Key{"harvest", "runs", "single", runID}
	v, err := c.getJSON(ctx, key, jobStale, httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(harvestBase, "runs", runID),
	}, decodeValue[HarvestRun])
	if err != nil {
		return nil, err
	}
	return v.(*HarvestRun), nil
}

// DefaultHarvestPollInterval is how often an observed harvest run is refreshed
// while it has not reached a terminal status.
const DefaultHarvestPollInterval = 3 * time.Second

// SubscribeHarvestRun attaches a polling observer to a harvest run. Polling
// continues through transport errors and stops once the run reports a
// terminal status; a completed run marks the dataset and harvest-run caches
// stale exactly once, since it created or updated catalog entries.
func (c *Client) SubscribeHarvestRun(runID string, interval time.Duration) *query.Subscription {
	enabled := strings.TrimSpace(runID) != ""
	if interval <= 0 {
		interval = DefaultHarvestPollInterval
	}
	key := query.Key{"harvest", "runs", "single", runID}
	fetch := c.fetchFunc(httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   path.Join(harvestBase, "runs", runID),
	}, decodeValue[HarvestRun])

	var once sync.Once
	pollFn := func(value any, err error) time.Duration {
		run, ok := value.(*HarvestRun)
		if !ok || !run.Status.Terminal() {
			return interval
		}
		if run.Status == HarvestComplete {
			// invalidation must not run under the cache lock
			once.Do(func() {
				go c.cache.Invalidate(invalidationsFor(MutationHarvestComplete, HarvestVars{RunID: runID})...)
			})
		}
		return 0
	}
	return c.cache.Subscribe(key, fetch, query.SubscribeOptions{
		Enabled:      enabled,
		StaleTime:    jobStale,
		PollInterval: pollFn,
	})
}
