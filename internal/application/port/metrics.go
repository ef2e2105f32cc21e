package port

// Metrics receives pipeline counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RateReceived(platform string)
	RateRejected(platform, symbol string)
	RateInvalid()
	Published(ch Channel)
	PublishFailed(ch Channel)
	Derived(symbol string)
	DerivedUnavailable(symbol string)
	ConnectorUp(platform string, up bool)
}

type NopMetrics struct{}

func (NopMetrics) RateReceived(string)         {}
func (NopMetrics) RateRejected(string, string) {}
func (NopMetrics) RateInvalid()                {}
func (NopMetrics) Published(Channel)           {}
func (NopMetrics) PublishFailed(Channel)       {}
func (NopMetrics) Derived(string)              {}
func (NopMetrics) DerivedUnavailable(string)   {}
func (NopMetrics) ConnectorUp(string, bool)    {}

var _ Metrics = NopMetrics{}
