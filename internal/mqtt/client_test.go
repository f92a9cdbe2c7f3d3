package mqtt

import (
	"os"
	"testing"
)

func TestBrokerURLDefault(t *testing.T) {
	os.Unsetenv("MQTT_URL")
	if got := BrokerURL(); got != "tcp://localhost:1883" {
		t.Errorf("got %q, want default broker url", got)
	}

	os.Setenv("MQTT_URL", "tcp://broker:1883")
	defer os.Unsetenv("MQTT_URL")
	if got := BrokerURL(); got != "tcp://broker:1883" {
		t.Errorf("got %q, want env broker url", got)
	}
}

func TestNewClientStartsDisconnected(t *testing.T) {
	c := NewClient("hydronet-test")
	if c.IsConnected() {
		t.Error("client must not connect before Connect is called")
	}
}

func TestTimeoutErrorMessages(t *testing.T) {
	var connectErr error = &ConnectTimeoutError{}
	if connectErr.Error() != "mqtt connect timeout" {
		t.Errorf("unexpected message: %s", connectErr.Error())
	}

	var publishErr error = &PublishTimeoutError{Topic: "hydronet/runs/r/status"}
	if publishErr.Error() != "mqtt publish timeout: hydronet/runs/r/status" {
		t.Errorf("unexpected message: %s", publishErr.Error())
	}

	var subscribeErr error = &SubscribeTimeoutError{Topic: "hydronet/targets/+"}
	if subscribeErr.Error() != "mqtt subscribe timeout: hydronet/targets/+" {
		t.Errorf("unexpected message: %s", subscribeErr.Error())
	}
}
