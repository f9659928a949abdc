package port

// BlockSubscriptionStrategy observes one node for new blocks and delivers
// them to listeners until unsubscribed.
type BlockSubscriptionStrategy interface {
	Subscribe() (Subscription, error)
	Unsubscribe()
	NodeName() string
}
