package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"time"

	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/database"
	"github.com/vigilo/vigilo/internal/httpx"
	"github.com/vigilo/vigilo/internal/services"
)

// HealthCheckJob polls each due health-check monitor with its configured
// HTTP request and drives the owning service's state from the outcome
type HealthCheckJob struct {
	db           *gorm.DB
	stateMachine *services.StateMachine
	clients      *httpx.Factory
}

// NewHealthCheckJob creates a health check job
func NewHealthCheckJob(db *gorm.DB, stateMachine *services.StateMachine, clients *httpx.Factory) *HealthCheckJob {
	return &HealthCheckJob{db: db, stateMachine: stateMachine, clients: clients}
}

// checkResult is the outcome of one poll
type checkResult struct {
	success bool
	message string
	elapsed time.Duration
}

// Run executes one pass over all due health-check monitors and returns
// the number of checks performed
func (j *HealthCheckJob) Run(now time.Time) (int, error) {
	monitors, err := database.GetMonitorsByType(j.db, database.MonitorTypeHealthCheck)
	if err != nil {
		return 0, err
	}

	checked := 0
	for i := range monitors {
		monitor := &monitors[i]
		if !j.isDue(monitor, now) {
			continue
		}

		result := j.check(monitor)
		checked++

		elapsedMs := float64(result.elapsed.Milliseconds())
		event := &database.MonitorEvent{
			MonitorID: monitor.ID,
			EventType: database.EventTypePoll,
			Success:   result.success,
			Value:     &elapsedMs,
			Message:   result.message,
		}
		if err := database.CreateMonitorEvent(j.db, event); err != nil {
			log.Printf("Failed to record health check event for monitor %d: %v", monitor.ID, err)
		}
		if err := database.TouchCheckIn(j.db, monitor, now); err != nil {
			log.Printf("Failed to update check-in for monitor %d: %v", monitor.ID, err)
		}

		service, err := database.GetServiceByID(j.db, monitor.ServiceID)
		if err != nil {
			log.Printf("Failed to load service %d for monitor %d: %v", monitor.ServiceID, monitor.ID, err)
			continue
		}
		if service == nil {
			continue
		}

		if result.success {
			_, err = j.stateMachine.TransitionToUp(service, result.message)
		} else {
			_, err = j.stateMachine.TransitionToDown(service, database.AlertTypeFailedHealthCheck, result.message)
		}
		if err != nil {
			log.Printf("Failed to transition service %d: %v", service.ID, err)
		}
	}
	return checked, nil
}

func (j *HealthCheckJob) isDue(monitor *database.Monitor, now time.Time) bool {
	if monitor.LastCheckIn == nil {
		return true
	}
	return !now.Before(monitor.LastCheckIn.Add(time.Duration(monitor.IntervalSeconds) * time.Second))
}

// check issues the configured request. Success requires the status code
// to be in the expected set and, when configured, the body to match the
// regex. The failure message is human-readable: it becomes the alert
// reason.
func (j *HealthCheckJob) check(monitor *database.Monitor) checkResult {
	timeout := time.Duration(monitor.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	method := monitor.Method
	if method == "" {
		method = http.MethodGet
	}

	started := time.Now()
	req, err := http.NewRequestWithContext(ctx, method, monitor.URL, nil)
	if err != nil {
		return checkResult{message: fmt.Sprintf("Invalid health check request: %v", err)}
	}

	resp, err := j.clients.Client(httpx.ClientHealthCheck).Do(req)
	elapsed := time.Since(started)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return checkResult{
				message: fmt.Sprintf("Health check timed out after %s", timeout),
				elapsed: elapsed,
			}
		}
		return checkResult{
			message: fmt.Sprintf("Connection error: %v", err),
			elapsed: elapsed,
		}
	}
	defer resp.Body.Close()

	if !monitor.ExpectedStatusSet()[resp.StatusCode] {
		return checkResult{
			message: fmt.Sprintf("Unexpected status code: %d", resp.StatusCode),
			elapsed: elapsed,
		}
	}

	if monitor.BodyRegex != "" {
		pattern, err := regexp.Compile(monitor.BodyRegex)
		if err != nil {
			return checkResult{
				message: fmt.Sprintf("Invalid body pattern: %v", err),
				elapsed: elapsed,
			}
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return checkResult{
				message: fmt.Sprintf("Failed to read response body: %v", err),
				elapsed: elapsed,
			}
		}
		if !pattern.Match(body) {
			return checkResult{
				message: fmt.Sprintf("Response body did not match pattern %q", monitor.BodyRegex),
				elapsed: elapsed,
			}
		}
	}

	return checkResult{
		success: true,
		message: fmt.Sprintf("Health check passed in %dms", elapsed.Milliseconds()),
		elapsed: elapsed,
	}
}

// Start begins the periodic health check polling
func (j *HealthCheckJob) Start(interval time.Duration, stop <-chan struct{}) {
	startLoop("Health check", interval, stop, func() error {
		_, err := j.Run(time.Now())
		return err
	})
}
