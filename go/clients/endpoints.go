package clients

const (
	// API Endpoints
	AuctionsEndpoint    = "/auctions"
	StartAuctionFormat  = "/auctions/%s/start"
	ExtendAuctionFormat = "/auctions/%s/extend"
	SyncUserEndpoint    = "/users/sync"
	CurrentUserEndpoint = "/users/me"
	MediaTokenEndpoint  = "/agora/token"
)
