package browser

// Cookie mirrors the cookie shape browsers export in a storage-state file.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // unix seconds, -1 for session cookies
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Session reports whether the cookie expires with the browser session.
func (c Cookie) Session() bool {
	return c.Expires <= 0
}

// StorageState is the persisted session blob.
type StorageState struct {
	Cookies []Cookie `json:"cookies"`
}
