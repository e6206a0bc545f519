package webhook

import "github.com/stretchr/testify/mock"

// MatchDelivery creates a custom matcher for delivery arguments in mocks
func MatchDelivery(matcher func(Delivery) bool) interface{} {
	return mock.MatchedBy(matcher)
}

// MatchRecord creates a custom matcher for retry record arguments in mocks
func MatchRecord(matcher func(RetryRecord) bool) interface{} {
	return mock.MatchedBy(matcher)
}
