package responder

import (
	"github.com/nssresponder/responderd/internal/config"
	"github.com/nssresponder/responderd/internal/provider"
	"github.com/nssresponder/responderd/internal/provider/inprocbus"
	"github.com/nssresponder/responderd/internal/provider/kafkabus"
)

// newBusFromConfig selects the provider.Bus transport cfg names.
// "inproc" with no external handler wired (the production case, absent
// a test-supplied override) behaves like a permanently disconnected
// provider — every Refresh falls back to whatever the persistent cache
// already holds, same as a real outage (spec.md §4.8). A deployment
// that wants a live provider configures "kafka".
func newBusFromConfig(cfg config.ProviderConfig) (provider.Bus, error) {
	switch cfg.Transport {
	case "kafka":
		return kafkabus.New(kafkabus.Config{Brokers: cfg.KafkaBrokers, GroupID: "nssresponderd"})
	default:
		return inprocbus.New(nil, nil), nil
	}
}
