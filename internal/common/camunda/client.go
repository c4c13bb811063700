// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"agri-pipeline/internal/failover"
)

// Client wraps the Zeebe gRPC client with retry logic for broker commands.
type Client struct {
	client zbc.Client
	config *ClientConfig
}

// ClientConfig holds configuration for the Camunda/Zeebe client.
type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	RequestTimeout         time.Duration
	RetryConfig            *RetryConfig
}

// RetryConfig defines retry behavior for transient failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 3,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
}

// BrokerError is returned once a broker command has exhausted its retries.
type BrokerError struct {
	Operation string
	Attempts  int
	Transient bool
	Err       error
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("zeebe operation '%s' failed after %d attempt(s): %v", e.Operation, e.Attempts, e.Err)
}

func (e *BrokerError) Unwrap() error { return e.Err }

// NewClientWithConfig connects to the gateway and verifies it with a topology request.
func NewClientWithConfig(config *ClientConfig) (*Client, error) {
	if config.RetryConfig == nil {
		config.RetryConfig = DefaultRetryConfig
	}
	if config.ConnectionTimeout == 0 {
		config.ConnectionTimeout = 10 * time.Second
	}

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         config.GatewayAddress,
		UsePlaintextConnection: config.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	c := &Client{client: zeebeClient, config: config}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectionTimeout)
	defer cancel()

	if _, err := c.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		return zeebeClient.NewTopologyCommand().Send(ctx)
	}, "topology"); err != nil {
		zeebeClient.Close()
		return nil, fmt.Errorf("failed to connect to Zeebe broker at %s: %w", config.GatewayAddress, err)
	}

	return c, nil
}

// GetClient returns the raw Zeebe client for job workers.
func (c *Client) GetClient() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// ExecuteWithRetry runs commandFunc with exponential backoff. Only transient
// errors (timeouts, connection issues) are retried.
func (c *Client) ExecuteWithRetry(
	ctx context.Context,
	commandFunc func(context.Context) (interface{}, error),
	operationName string,
) (interface{}, error) {
	retry := c.config.RetryConfig
	for attempt := 0; ; attempt++ {
		result, err := commandFunc(ctx)
		if err == nil {
			return result, nil
		}

		transient := isRetryableZeebeError(err)
		if !transient || attempt >= retry.MaxRetries {
			return nil, &BrokerError{Operation: operationName, Attempts: attempt + 1, Transient: transient, Err: err}
		}

		delay := failover.RetryPolicy{BaseDelay: retry.BaseDelay, MaxDelay: retry.MaxDelay}.Delay(attempt + 1)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &BrokerError{Operation: operationName, Attempts: attempt + 1, Transient: true, Err: ctx.Err()}
		}
	}
}

func isRetryableZeebeError(err error) bool {
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
			return true
		default:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	retryablePhrases := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"unreachable",
		"broken pipe",
		"resource_exhausted",
	}
	for _, phrase := range retryablePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// HealthCheck performs a topology request against the broker.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}
