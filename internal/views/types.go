package views

// DefaultDateFormat is used for timestamps when a field has no format
const DefaultDateFormat = "2006-01-02"

// View represents a channel table configuration
type View struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description,omitempty"`
	Fields      []Field `yaml:"fields"`
	NoHeader    bool    `yaml:"no_header,omitempty"`
}

// Field represents one column of a view
type Field struct {
	Name     string `yaml:"name"`
	Width    int    `yaml:"width,omitempty"`
	Align    string `yaml:"align,omitempty"`  // left, center, right
	Format   string `yaml:"format,omitempty"` // time layout for created
	Truncate bool   `yaml:"truncate,omitempty"`
}

// AvailableFields returns the list of valid channel field names
var AvailableFields = []string{
	"id",
	"name",
	"description",
	"followers",
	"member",
	"lead",
	"moderators",
	"created",
	"url",
	"image_url",
}

// DefaultView returns the built-in default channel view
func DefaultView() *View {
	return &View{
		Name:        "default",
		Description: "Channel name, follower count and membership",
		Fields: []Field{
			{Name: "id", Width: 20, Truncate: true},
			{Name: "name", Width: 28, Truncate: true},
			{Name: "followers", Width: 10, Align: "right"},
			{Name: "member", Width: 6, Align: "center"},
		},
	}
}

// AllView returns the built-in 'all' view showing every channel field
func AllView() *View {
	return &View{
		Name:        "all",
		Description: "Every channel field returned by the API",
		Fields: []Field{
			{Name: "id"},
			{Name: "name"},
			{Name: "followers", Align: "right"},
			{Name: "member"},
			{Name: "lead"},
			{Name: "moderators"},
			{Name: "created"},
			{Name: "url"},
			{Name: "image_url"},
			{Name: "description"},
		},
	}
}

func framesView() *View {
	return &View{
		Name: "frames",
		Fields: []Field{
			{Name: "rank", Width: 4, Align: "right"},
			{Name: "score", Width: 10, Align: "right"},
			{Name: "name", Width: 24, Truncate: true},
			{Name: "url"},
		},
	}
}

func statsView() *View {
	return &View{
		Name: "stats",
		Fields: []Field{
			{Name: "operation", Width: 22},
			{Name: "backend", Width: 10},
			{Name: "total", Width: 8, Align: "right"},
			{Name: "success", Width: 8, Align: "right"},
			{Name: "avg_ms", Width: 8, Align: "right"},
			{Name: "top_error"},
		},
	}
}
