//go:build integration

package mqtt

import (
	"errors"
	"testing"
	"time"
)

// Broker tests need Mosquitto on 127.0.0.1:1883.
//
//	go test -tags=integration -count=1 ./internal/infrastructure/mqtt/...

func connectT(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestIntegration_Connect(t *testing.T) {
	client := connectT(t, "conveyor-int-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19998

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_SlotStateRoundtrip(t *testing.T) {
	pub := connectT(t, "conveyor-int-pub")
	sub := connectT(t, "conveyor-int-sub")

	received := make(chan string, 4)
	err := sub.Subscribe(Topics{}.AllSlotStates(), 1, func(topic string, payload []byte) error {
		received <- topic + " " + string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !sub.HasSubscription(Topics{}.AllSlotStates()) {
		t.Error("HasSubscription() = false after Subscribe")
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.PublishJSON(Topics{}.SlotState(12), map[string]string{"state": "Reserved"}, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case got := <-received:
		want := `conveyor/slot/12/state {"state":"Reserved"}`
		if got != want {
			t.Errorf("received %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for slot state")
	}

	if err := sub.Unsubscribe(Topics{}.AllSlotStates()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if sub.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", sub.SubscriptionCount())
	}
}

func TestIntegration_DisconnectCallback(t *testing.T) {
	client := connectT(t, "conveyor-int-cb")

	called := make(chan struct{}, 1)
	client.SetOnDisconnect(func(error) { called <- struct{}{} })
	client.handleDisconnect(errors.New("simulated"))

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("disconnect callback not invoked")
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
}
