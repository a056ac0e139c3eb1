package opcua

import (
	"context"
	"fmt"
	"sync"
	"time"

	gopcua "github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
)

// notifyBuffer is the depth of the publish notification channel.
const notifyBuffer = 32

// ClientDialer dials sessions with github.com/gopcua/opcua using no
// security, which is how the conveyor PLC is configured.
type ClientDialer struct {
	// RequestTimeout bounds each service call.
	RequestTimeout time.Duration
}

// Dial connects to endpoint, e.g. "opc.tcp://192.168.1.200:4840".
func (d ClientDialer) Dial(ctx context.Context, endpoint string) (Session, error) {
	opts := []gopcua.Option{
		gopcua.SecurityMode(ua.MessageSecurityModeNone),
		gopcua.SecurityPolicy(ua.SecurityPolicyURINone),
		gopcua.AutoReconnect(false),
	}
	if d.RequestTimeout > 0 {
		opts = append(opts, gopcua.RequestTimeout(d.RequestTimeout))
	}

	client, err := gopcua.NewClient(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating client for %s: %w", endpoint, err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", endpoint, err)
	}
	return &clientSession{client: client}, nil
}

type clientSession struct {
	client *gopcua.Client
}

func uaNode(n NodeID) *ua.NodeID {
	return ua.NewNumericNodeID(n.Namespace, n.ID)
}

func (s *clientSession) Read(ctx context.Context, node NodeID) (any, error) {
	resp, err := s.client.Read(ctx, &ua.ReadRequest{
		MaxAge:             0,
		TimestampsToReturn: ua.TimestampsToReturnBoth,
		NodesToRead: []*ua.ReadValueID{
			{NodeID: uaNode(node), AttributeID: ua.AttributeIDValue},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: empty read response", ErrBadStatus)
	}
	result := resp.Results[0]
	if result.Status != ua.StatusOK {
		return nil, fmt.Errorf("%w: %v", ErrBadStatus, result.Status)
	}
	if result.Value == nil {
		return nil, nil
	}
	return result.Value.Value(), nil
}

func (s *clientSession) Write(ctx context.Context, node NodeID, value any) error {
	v, err := ua.NewVariant(value)
	if err != nil {
		return fmt.Errorf("%w: encoding %T: %v", ErrBadStatus, value, err)
	}
	resp, err := s.client.Write(ctx, &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{{
			NodeID:      uaNode(node),
			AttributeID: ua.AttributeIDValue,
			Value: &ua.DataValue{
				EncodingMask: ua.DataValueValue,
				Value:        v,
			},
		}},
	})
	if err != nil {
		return err
	}
	if len(resp.Results) == 0 {
		return fmt.Errorf("%w: empty write response", ErrBadStatus)
	}
	if status := resp.Results[0]; status != ua.StatusOK {
		return fmt.Errorf("%w: %v", ErrBadStatus, status)
	}
	return nil
}

func (s *clientSession) Subscribe(ctx context.Context, node NodeID, interval time.Duration) (Subscription, error) {
	notify := make(chan *gopcua.PublishNotificationData, notifyBuffer)
	sub, err := s.client.Subscribe(ctx, &gopcua.SubscriptionParameters{Interval: interval}, notify)
	if err != nil {
		return nil, err
	}

	req := gopcua.NewMonitoredItemCreateRequestWithDefaults(uaNode(node), ua.AttributeIDValue, node.ID)
	resp, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
	if err != nil {
		sub.Cancel(ctx) //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	if len(resp.Results) > 0 && resp.Results[0].StatusCode != ua.StatusOK {
		sub.Cancel(ctx) //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: monitoring %s: %v", ErrBadStatus, node, resp.Results[0].StatusCode)
	}

	cs := &clientSubscription{
		sub:    sub,
		notify: notify,
		values: make(chan any, notifyBuffer),
		stop:   make(chan struct{}),
	}
	go cs.pump()
	return cs, nil
}

func (s *clientSession) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

type clientSubscription struct {
	sub    *gopcua.Subscription
	notify chan *gopcua.PublishNotificationData
	values chan any
	stop   chan struct{}
	once   sync.Once
}

func (c *clientSubscription) Values() <-chan any {
	return c.values
}

// pump turns publish notifications into plain values until stopped or the
// server reports an error.
func (c *clientSubscription) pump() {
	defer close(c.values)
	for {
		select {
		case <-c.stop:
			return
		case msg := <-c.notify:
			if msg == nil || msg.Error != nil {
				return
			}
			change, ok := msg.Value.(*ua.DataChangeNotification)
			if !ok {
				continue
			}
			for _, item := range change.MonitoredItems {
				if item == nil || item.Value == nil || item.Value.Value == nil {
					continue
				}
				select {
				case c.values <- item.Value.Value.Value():
				case <-c.stop:
					return
				}
			}
		}
	}
}

func (c *clientSubscription) Cancel(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		close(c.stop)
		err = c.sub.Cancel(ctx)
	})
	return err
}
