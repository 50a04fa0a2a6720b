package constants

import "time"

const (
	TopicInbound     = "messages.inbound"
	TopicOutbound    = "messages.outbound"
	TopicInboundDLQ  = "messages.inbound.dlq"
	TopicOutboundDLQ = "messages.outbound.dlq"
)

const (
	RoutingKeySuffixInbound  = ".inbound"
	RoutingKeySuffixOutbound = ".outbound"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixDedup = "dedup:"
	CacheKeyPrefixSent  = "sent:"
)

const (
	// Dedup TTL window allowed by configuration.
	DedupTTLMin     = 60 * time.Second
	DedupTTLMax     = 5 * time.Minute
	DedupTTLDefault = 120 * time.Second
)

const (
	DefaultHTTPTimeout         = 10 * time.Second
	DefaultConsumerConcurrency = 4
	ShutdownTimeout            = 5 * time.Second
)

const (
	DedupStoreRedis = "redis"
	DedupStoreLocal = "local"
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	DefaultSentMarkerTTL = 7 * 24 * time.Hour
)
