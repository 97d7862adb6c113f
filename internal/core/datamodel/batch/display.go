package batch

import "fmt"

// Display is the render metadata for one status: what the chip says, which
// color token it uses, and which icon key the frontend resolves.
type Display struct {
	Label   string `json:"label"`
	Color   string `json:"color"`
	IconKey string `json:"icon_key"`
}

// displayTable maps every known status to its render metadata. Kept as a
// static table rather than a switch so init can verify coverage.
var displayTable = map[Status]Display{
	StatusCreated:       {Label: "Created", Color: "default", IconKey: "draft"},
	StatusFileGenerated: {Label: "File Generated", Color: "info", IconKey: "file"},
	StatusSentToBank:    {Label: "Sent to Bank", Color: "warning", IconKey: "send"},
	StatusProcessing:    {Label: "Processing", Color: "warning", IconKey: "sync"},
	StatusCompleted:     {Label: "Completed", Color: "success", IconKey: "check"},
	StatusFailed:        {Label: "Failed", Color: "error", IconKey: "alert"},
}

// unknownDisplay is the defensive row for statuses the server may introduce
// before this service learns about them.
var unknownDisplay = Display{Label: "Unknown", Color: "default", IconKey: "help"}

func init() {
	for _, s := range CanonicalOrder {
		if _, ok := displayTable[s]; !ok {
			panic(fmt.Sprintf("display table missing status %s", s))
		}
	}
	if _, ok := displayTable[StatusFailed]; !ok {
		panic("display table missing status FAILED")
	}
}

// DisplayFor returns render metadata for a status, falling back to the
// neutral unknown row instead of failing.
func DisplayFor(s Status) Display {
	if d, ok := displayTable[s]; ok {
		return d
	}
	return unknownDisplay
}
