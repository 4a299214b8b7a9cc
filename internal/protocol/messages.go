package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	ClientID        string         `json:"client_id"`
	WorldID         string         `json:"world_id"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
	Buildings       []BuildingRef  `json:"buildings"`
}

type WorldParams struct {
	TickRateHz  int     `json:"tick_rate_hz"`
	Seed        int64   `json:"seed"`
	WorldWidth  int     `json:"world_width"`
	WorldHeight int     `json:"world_height"`
	VoxelSize   float64 `json:"voxel_size"`
	ChunkSize   int     `json:"chunk_size"`
	CellSize    float64 `json:"cell_size"`
	NoiseScale  float64 `json:"noise_scale"`
	Threshold   float64 `json:"threshold"`
}

type CatalogDigests struct {
	BuildingsDigest string `json:"buildings_digest"`
}

type BuildingRef struct {
	ID           string  `json:"id"`
	Name         string  `json:"name,omitempty"`
	Footprint    [2]int  `json:"footprint"`
	Cost         float64 `json:"cost"`
	ResourceCost float64 `json:"resource_cost"`
}

// INTENT (client -> server)
type IntentMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Kind            string      `json:"kind"`
	BuildingID      string      `json:"building_id,omitempty"`
	Pos             *[3]float64 `json:"pos,omitempty"`
	Dir             int         `json:"dir,omitempty"` // -1 or 1 for ROTATE
}

// STATE (server -> client), once per tick.
type StateMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	Session         SessionView `json:"session"`
	Stats           []StatView  `json:"stats"`
	Notice          *NoticeView `json:"notice,omitempty"`
}

type SessionView struct {
	State      string      `json:"state"`
	BuildingID string      `json:"building_id,omitempty"`
	Pos        *[3]float64 `json:"pos,omitempty"`
	Rotation   int         `json:"rotation"` // degrees
	Valid      bool        `json:"valid"`
	Color      [4]float32  `json:"color,omitempty"`
}

type StatView struct {
	Name    string  `json:"name"`
	Base    float64 `json:"base"`
	Current float64 `json:"current"`
}

type NoticeView struct {
	Message     string `json:"message"`
	RemainingMs int64  `json:"remaining_ms"`
}

// PULSE (server -> client), every pulse interval.
type PulseMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	N               uint64 `json:"n"`
}

// PLACED (server -> client) after a committed placement.
type PlacedMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	Placement       PlacementRec `json:"placement"`
}

type PlacementRec struct {
	ID         string     `json:"id"`
	BuildingID string     `json:"building_id"`
	Pos        [3]float64 `json:"pos"`
	Rotation   int        `json:"rotation"`
	Footprint  [2]int     `json:"footprint"`
}

// ERROR (server -> client) for rejected intents.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
