package storefront

// Location is one restaurant location record.
type Location struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Image    string `json:"image,omitempty"`
	IsActive int    `json:"is_active,omitempty"`
}

// Table is a physical table inside a zone.
type Table struct {
	ID          int64  `json:"id"`
	LocationID  int64  `json:"business_location_id"`
	ZoneID      int64  `json:"zone_id"`
	TableCode   string `json:"table_code"`
	DisplayName string `json:"display_name"`
	Seats       int    `json:"seats"`
	QRCode      string `json:"qr_public_code,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// Zone groups tables within a location.
type Zone struct {
	ID         int64   `json:"id"`
	LocationID int64   `json:"business_location_id"`
	ZoneNumber int     `json:"zone_no"`
	Name       string  `json:"name"`
	Tables     []Table `json:"tables"`
}

// TableSession is an active dining session bound to a table.
type TableSession struct {
	SessionID  int64  `json:"session_id"`
	TableID    int64  `json:"table_id"`
	LocationID int64  `json:"location_id"`
	ZoneID     int64  `json:"zone_id"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`
	ExpiresAt  string `json:"expires_at"`
}
