package domain

// FeedTag identifies which feed adapter (and therefore which normaliser)
// produced a FeedRecord.
type FeedTag string

const (
	FeedEuronext FeedTag = "euronext"
	FeedLSE      FeedTag = "lse"
	FeedXetra    FeedTag = "xetra"
)

// FeedRecord pairs a feed's tag with its opaque raw payload, produced by
// the source feeds before the parse stage applies the tag-specific
// normaliser.
type FeedRecord struct {
	FeedTag FeedTag
	Payload []byte
}
