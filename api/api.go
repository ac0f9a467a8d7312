package api

import (
	"fmt"
	"strings"
)

type Endpoint struct {
	Name        string
	Path        string
	Method      string
	Params      []*Param
	Response    []*Value
	Description string
}

type Param struct {
	Name        string
	Value       string
	Description string
}

type Value struct {
	Type   string
	Params []*Param
}

var Endpoints = []*Endpoint{{
	Name:        "Search",
	Path:        "/places/search",
	Method:      "POST",
	Description: "Run a recursive nearby search. Saturated areas are split into seven smaller disks until every branch drains. Returns 409 while another search is running and 400 for an out-of-range centre or radius.",
	Params: []*Param{
		{Name: "lat", Value: "number", Description: "Latitude of the search centre; defaults to the last one used"},
		{Name: "lng", Value: "number", Description: "Longitude of the search centre"},
		{Name: "radius", Value: "number", Description: "Radius in metres"},
		{Name: "type", Value: "string", Description: "Place type, e.g. park or cafe; empty for any"},
		{Name: "keyword", Value: "string", Description: "Free-text keyword passed to the provider"},
		{Name: "min_rating", Value: "number", Description: "Lowest accepted rating, inclusive"},
		{Name: "min_rating_count", Value: "number", Description: "Reviews required, exclusive"},
	},
	Response: []*Value{{
		Type: "JSON",
		Params: []*Param{
			{Name: "run_id", Value: "string", Description: "Identifier of the search"},
			{Name: "nodes", Value: "number", Description: "Disks queried"},
			{Name: "requests", Value: "number", Description: "Provider requests made"},
			{Name: "inserted", Value: "number", Description: "New places recorded"},
			{Name: "incomplete", Value: "bool", Description: "Some disk was still saturated at the depth limit"},
			{Name: "warning", Value: "string", Description: "Shown when incomplete"},
		},
	}},
}, {
	Name:        "Places",
	Path:        "/places",
	Method:      "GET",
	Description: "List the discovered places and searched areas. Pass lat, lng and radius to list only the places inside that disk.",
	Response: []*Value{{
		Type: "JSON",
		Params: []*Param{
			{Name: "results", Value: "array", Description: "Places in discovery order, or nearest first when filtered"},
			{Name: "areas", Value: "array", Description: "Every disk queried so far"},
			{Name: "state", Value: "string", Description: "idle or searching"},
		},
	}},
}, {
	Name:        "Find",
	Path:        "/places/find",
	Method:      "GET",
	Description: "Text search over the discovered places by name, type and address. Optional lat, lng and radius limit the results to a disk.",
	Params: []*Param{
		{Name: "q", Value: "string", Description: "Search terms"},
	},
	Response: []*Value{{
		Type: "JSON",
		Params: []*Param{
			{Name: "results", Value: "array", Description: "Matching places with their distance"},
		},
	}},
}, {
	Name:        "Delete",
	Path:        "/places/delete",
	Method:      "POST",
	Description: "Remove one place.",
	Params: []*Param{
		{Name: "id", Value: "string", Description: "The place_id to remove"},
	},
}, {
	Name:        "Clear",
	Path:        "/places/clear",
	Method:      "POST",
	Description: "Remove every place. Use /places/clear-areas for the searched areas and /places/clear-all for both.",
}, {
	Name:        "Reset inputs",
	Path:        "/places/prefs/reset",
	Method:      "POST",
	Description: "Forget the saved search inputs and return the defaults.",
}, {
	Name:        "Export KML",
	Path:        "/places/export.kml",
	Method:      "GET",
	Description: "Download the places as KML. /places/export.kmz returns the same document zipped.",
}, {
	Name:        "Progress",
	Path:        "/places/snapshot",
	Method:      "GET",
	Description: "Download the places and searched areas as a progress file. POST the file back to restore it.",
	Response: []*Value{{
		Type: "JSON",
		Params: []*Param{
			{Name: "placesData", Value: "array", Description: "Places"},
			{Name: "searchedAreas", Value: "array", Description: "Searched areas"},
		},
	}},
}, {
	Name:        "Live",
	Path:        "/places/live",
	Method:      "GET",
	Description: "WebSocket feed of place, area, warning and search events while a search runs.",
}, {
	Name:        "Status",
	Path:        "/status",
	Method:      "GET",
	Description: "Server health, provider call log and recent log lines.",
}}

func Register(ep *Endpoint) {
	Endpoints = append(Endpoints, ep)
}

// Markdown renders the endpoint list as a usage page.
func Markdown() string {
	var data strings.Builder

	data.WriteString("# Sweep\n\n")
	data.WriteString("Sweep finds every place of a type in an area. Nearby search stops at 60 results, ")
	data.WriteString("so wherever an area hits that cap it is split into smaller areas and searched again.\n\n")
	data.WriteString("Open [/places](/places) to search on the map. ")
	data.WriteString("Every endpoint answers JSON when sent `Accept: application/json` or `?format=json`.\n\n")
	data.WriteString("```bash\n")
	data.WriteString("curl -H \"Content-Type: application/json\" \\\n")
	data.WriteString("     -d '{\"lat\": 41.1139, \"lng\": 29.0541, \"radius\": 1000, \"type\": \"park\"}' \\\n")
	data.WriteString("     http://localhost:8080/places/search\n")
	data.WriteString("```\n\n")
	data.WriteString("---\n\n")
	data.WriteString("## Endpoints\n\n")

	for _, endpoint := range Endpoints {
		fmt.Fprintf(&data, "## %s\n\n", endpoint.Name)
		fmt.Fprintln(&data, endpoint.Description)
		fmt.Fprintln(&data)
		fmt.Fprintf(&data, "```%s %s```\n\n", endpoint.Method, endpoint.Path)

		if endpoint.Params != nil {
			data.WriteString("#### Request\n\n")
			data.WriteString("Format: JSON or form\n\n")
			data.WriteString("| Field | Type | Description |\n")
			data.WriteString("| ----- | ---- | ----------- |\n")
			for _, param := range endpoint.Params {
				fmt.Fprintf(&data, "| %s | %s | %s |\n", param.Name, param.Value, param.Description)
			}
			data.WriteString("\n")
		}

		if endpoint.Response != nil {
			data.WriteString("#### Response\n\n")
			for _, resp := range endpoint.Response {
				fmt.Fprintf(&data, "Format: %s\n\n", resp.Type)
				data.WriteString("| Field | Type | Description |\n")
				data.WriteString("| ----- | ---- | ----------- |\n")
				for _, param := range resp.Params {
					fmt.Fprintf(&data, "| %s | %s | %s |\n", param.Name, param.Value, param.Description)
				}
				data.WriteString("\n")
			}
		}

		data.WriteString("\n")
	}

	return data.String()
}
