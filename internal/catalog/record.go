package catalog

// Record is a single listing as published by the external catalog.
type Record struct {
	Title        string       `json:"title" validate:"required"`
	Description  string       `json:"description"`
	Organization Organization `json:"organization"`
	Activities   []Activity   `json:"activities"`
}

// Organization describes the host of an opportunity.
type Organization struct {
	Name string `json:"name" validate:"required"`
	Logo string `json:"logo"`
}

// Activity links a listing to a category by name.
type Activity struct {
	Category string `json:"category"`
}

// CategoryNames returns the activity category names in source order.
func (r Record) CategoryNames() []string {
	names := make([]string, 0, len(r.Activities))
	for _, activity := range r.Activities {
		names = append(names, activity.Category)
	}
	return names
}

type pageResponse struct {
	Results *[]Record `json:"results"`
	Next    *string   `json:"next"`
}

func (p pageResponse) hasNext() bool {
	return p.Next != nil && *p.Next != ""
}
