package kafka

import "fmt"

// TopicPrefix namespaces every storefront topic.
const TopicPrefix = "storefront"

// Topic returns the conventional "<prefix>.<domain>.<action>" topic name.
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}
