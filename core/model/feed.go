package model

import "time"

// CanonicalResolution is the fixed sampling interval every feed is normalized
// to before reaching the optimizer.
const CanonicalResolution = 15 * time.Minute

// FeedName identifies a logical series independent of the source that
// supplies it.
type FeedName string

const (
	FeedDayAhead        FeedName = "day_ahead_price"
	FeedFCR             FeedName = "fcr_price"
	FeedAFRRCapacityPos FeedName = "afrr_capacity_pos"
	FeedAFRRCapacityNeg FeedName = "afrr_capacity_neg"
	FeedAFRREnergyPos   FeedName = "afrr_energy_pos"
	FeedAFRREnergyNeg   FeedName = "afrr_energy_neg"
	FeedSolarIrradiance FeedName = "solar_irradiance"
	FeedWindSpeed       FeedName = "wind_speed"
	FeedWindDirection   FeedName = "wind_direction"
	FeedTemperature     FeedName = "temperature"
	FeedCloudCover      FeedName = "cloud_cover"
	FeedHumidity        FeedName = "humidity"
)

// FeedKind selects the resampling rule applied when a source's native
// resolution is coarser than the canonical grid.
type FeedKind int

const (
	// KindBlock holds each native value constant across the canonical
	// sub-intervals it covers (capacity market blocks).
	KindBlock FeedKind = iota
	// KindContinuous interpolates linearly between native samples
	// (weather quantities).
	KindContinuous
)

func (k FeedKind) String() string {
	if k == KindBlock {
		return "block"
	}
	return "continuous"
}

// Feed describes one logical series: unit, resampling rule, wire key and the
// numeric range the validator accepts.
type Feed struct {
	Name             FeedName
	Kind             FeedKind
	Unit             string
	NativeResolution time.Duration
	// WireKey is the per-record JSON key in the emitted format, e.g. the
	// bidding zone ("DE_LU") or a direction-split key ("DE_Pos").
	WireKey string
	// Min and Max bound plausible values. Prices may be negative,
	// generation-related quantities may not.
	Min float64
	Max float64
	// CacheTTL is how long a resolved segment stays fresh. Defaults outlive
	// the rolling reuse of overlapping horizons; callers needing
	// guaranteed-live data invalidate explicitly.
	CacheTTL time.Duration
	// MaxGap limits the span linear interpolation may bridge before the
	// resampler refuses with a gap error. Ignored for block feeds.
	MaxGap time.Duration
}

// SegmentTTL is the default cache lifetime of a resolved segment. The
// trailing segment of one horizon is still the leading segment of the horizon
// three cadences later, so entries must survive HorizonLength-RollingCadence;
// the full horizon length leaves headroom for assembly jitter.
const SegmentTTL = HorizonLength

// MarketFeeds returns the four electricity-market price feeds (with the
// direction-split aFRR feeds counted individually) for the given bidding
// zone, configured with their native resolutions and units.
func MarketFeeds(zone string) []Feed {
	country := zone
	// Reserve markets key on country without the bidding-zone suffix.
	reserveKey := reserveCountry(zone)
	return []Feed{
		{Name: FeedDayAhead, Kind: KindContinuous, Unit: "EUR/MWh", NativeResolution: CanonicalResolution, WireKey: country, Min: -500, Max: 3000, CacheTTL: SegmentTTL},
		{Name: FeedFCR, Kind: KindBlock, Unit: "EUR/MW", NativeResolution: 4 * time.Hour, WireKey: reserveKey, Min: 0, Max: 5000, CacheTTL: SegmentTTL},
		{Name: FeedAFRRCapacityPos, Kind: KindBlock, Unit: "EUR/MW", NativeResolution: 4 * time.Hour, WireKey: reserveKey + "_Pos", Min: 0, Max: 5000, CacheTTL: SegmentTTL},
		{Name: FeedAFRRCapacityNeg, Kind: KindBlock, Unit: "EUR/MW", NativeResolution: 4 * time.Hour, WireKey: reserveKey + "_Neg", Min: 0, Max: 5000, CacheTTL: SegmentTTL},
		{Name: FeedAFRREnergyPos, Kind: KindContinuous, Unit: "EUR/MWh", NativeResolution: CanonicalResolution, WireKey: reserveKey + "_Pos", Min: -1000, Max: 10000, CacheTTL: SegmentTTL},
		{Name: FeedAFRREnergyNeg, Kind: KindContinuous, Unit: "EUR/MWh", NativeResolution: CanonicalResolution, WireKey: reserveKey + "_Neg", Min: -1000, Max: 10000, CacheTTL: SegmentTTL},
	}
}

// WeatherFeeds returns the feed group supplied by the weather provider.
// Native resolution is the provider's 3-hourly forecast step.
func WeatherFeeds() []Feed {
	const native = 3 * time.Hour
	const ttl = SegmentTTL
	gap := 2 * native
	return []Feed{
		{Name: FeedSolarIrradiance, Kind: KindContinuous, Unit: "W/m2", NativeResolution: native, WireKey: "solar_irradiance", Min: 0, Max: 1500, CacheTTL: ttl, MaxGap: gap},
		{Name: FeedWindSpeed, Kind: KindContinuous, Unit: "m/s", NativeResolution: native, WireKey: "wind_speed", Min: 0, Max: 80, CacheTTL: ttl, MaxGap: gap},
		{Name: FeedWindDirection, Kind: KindContinuous, Unit: "deg", NativeResolution: native, WireKey: "wind_direction", Min: 0, Max: 360, CacheTTL: ttl, MaxGap: gap},
		{Name: FeedTemperature, Kind: KindContinuous, Unit: "degC", NativeResolution: native, WireKey: "temperature", Min: -60, Max: 60, CacheTTL: ttl, MaxGap: gap},
		{Name: FeedCloudCover, Kind: KindContinuous, Unit: "%", NativeResolution: native, WireKey: "cloud_cover", Min: 0, Max: 100, CacheTTL: ttl, MaxGap: gap},
		{Name: FeedHumidity, Kind: KindContinuous, Unit: "%", NativeResolution: native, WireKey: "humidity", Min: 0, Max: 100, CacheTTL: ttl, MaxGap: gap},
	}
}

// RequiredFeeds is the full optimizer schema: every feed the assembler must
// resolve before an OptimizationInput may be emitted.
func RequiredFeeds(zone string) []Feed {
	return append(MarketFeeds(zone), WeatherFeeds()...)
}

func reserveCountry(zone string) string {
	// DE_LU bids day-ahead as a joint zone but tenders reserves as DE.
	if zone == "DE_LU" {
		return "DE"
	}
	return zone
}
