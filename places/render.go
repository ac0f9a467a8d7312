package places

import (
	"encoding/json"
	"fmt"
	"strings"
)

const leafletAssets = `<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css" integrity="sha256-p4NxAoJBhIIN+hmNHrzRCf9tD/miZyoHS5obTRR9BMY=" crossorigin="">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js" integrity="sha256-20nQCchB9co0qIjJZRGuk2/Z9VM+kNiyxNV/XN/WPeE=" crossorigin=""></script>`

// renderPlacesPage renders the map, the search form and the place list.
func renderPlacesPage(prefs Prefs, places []Place, areas []SearchArea, last *Report, state State) string {
	var sb strings.Builder

	sb.WriteString(`<div class="places-page">`)
	sb.WriteString(renderStatusLine(last, state, len(places), len(areas)))
	sb.WriteString(fmt.Sprintf(`<div class="places-forms">
  <div class="card">
    <h3>Search</h3>
    <p class="text-muted">Click the map to pick a centre.</p>
    <form action="/places/search" method="POST" class="places-search-form" id="search-form">
      <input type="hidden" name="lat" id="search-lat" value="%s">
      <input type="hidden" name="lng" id="search-lng" value="%s">
      <label>Radius (m) <input type="number" name="radius" id="search-radius" min="1" value="%s"></label>
      <label>Type <input type="text" name="type" value="%s" placeholder="park"></label>
      <label>Keyword <input type="text" name="keyword" value="%s"></label>
      <label>Min rating <input type="number" name="min_rating" step="0.1" min="0" max="5" value="%s"></label>
      <label>Min reviews <input type="number" name="min_rating_count" min="0" value="%d"></label>
      <button type="submit"%s>Search</button>
    </form>
  </div>
  <div class="card">
    <h3>Data</h3>
    <p>
      <a href="/places/export.kml">Export KML</a> &middot;
      <a href="/places/export.kmz">Export KMZ</a> &middot;
      <a href="/places/snapshot">Save progress</a>
    </p>
    <form action="/places/snapshot" method="POST" enctype="multipart/form-data">
      <input type="file" name="file" accept="application/json">
      <button type="submit" class="btn-secondary">Load progress</button>
    </form>
    <form action="/places/clear" method="POST" style="display:inline"><button type="submit" class="btn-secondary">Clear places</button></form>
    <form action="/places/clear-areas" method="POST" style="display:inline"><button type="submit" class="btn-secondary">Clear areas</button></form>
    <form action="/places/clear-all" method="POST" style="display:inline"><button type="submit" class="btn-secondary">Clear all</button></form>
  </div>
</div>
<div id="places-map" style="height:500px;width:100%%;margin:16px 0;border-radius:8px;"></div>
`,
		formatFloat(prefs.Center.Lat), formatFloat(prefs.Center.Lng), formatFloat(prefs.Radius),
		escapeHTML(prefs.Type), escapeHTML(prefs.Keyword),
		formatFloat(prefs.MinRating), prefs.MinRatingCount,
		disabledIf(state == Searching),
	))
	sb.WriteString(renderMapScript(places, areas, prefs.Center, prefs.Zoom))

	sb.WriteString(`<div class="places-results" id="places-results">`)
	if len(places) == 0 {
		sb.WriteString(`<p class="text-muted">No places yet. Pick a centre and search.</p>`)
	}
	for _, p := range places {
		sb.WriteString(renderPlaceCard(p))
	}
	sb.WriteString(`</div></div>`)
	return sb.String()
}

func renderStatusLine(last *Report, state State, nPlaces, nAreas int) string {
	line := fmt.Sprintf("%d place(s) across %d searched area(s)", nPlaces, nAreas)
	if state == Searching {
		line += " &middot; searching&hellip;"
	}
	out := fmt.Sprintf(`<p class="text-muted" id="places-status">%s</p>`, line)
	if last != nil && last.Warning != "" {
		out += fmt.Sprintf(`<p class="places-warning" id="places-warning">%s</p>`, escapeHTML(last.Warning))
	} else {
		out += `<p class="places-warning" id="places-warning" style="display:none"></p>`
	}
	return out
}

// renderPlaceCard renders a single place card with its delete action.
func renderPlaceCard(p Place) string {
	cat := ""
	if c := p.Category(); c != "" {
		cat = fmt.Sprintf(` <span class="place-category">%s</span>`, escapeHTML(c))
	}
	rating := ""
	if p.Rating != nil && p.RatingCount != nil {
		rating = fmt.Sprintf(`<p class="text-muted" style="font-size:0.85em;">&#9733; %.1f (%d reviews)</p>`, *p.Rating, *p.RatingCount)
	}
	addr := ""
	if p.Vicinity != "" {
		addr = fmt.Sprintf(`<p class="place-address text-muted">%s</p>`, escapeHTML(p.Vicinity))
	}
	return fmt.Sprintf(`<div class="card place-card" id="place-%s">
  <h4>%s%s</h4>
  %s%s
  <p class="text-muted" style="font-size:0.85em;"><a href="%s" target="_blank" rel="noopener">Open in Google Maps</a> &middot; %.5f, %.5f</p>
  <form action="/places/delete" method="POST"><input type="hidden" name="id" value="%s"><button type="submit" class="btn-secondary">Delete</button></form>
</div>`, escapeHTML(p.ID), escapeHTML(p.Name), cat, rating, addr, escapeHTML(mapsURL(p)), p.Lat, p.Lng, escapeHTML(p.ID))
}

func mapsURL(p Place) string {
	return "https://www.google.com/maps/place/?q=place_id:" + p.ID
}

// placePopupHTML builds an HTML string for a Leaflet map popup for p.
func placePopupHTML(p Place) string {
	popup := "<b>" + escapeHTML(p.Name) + "</b>"
	if c := p.Category(); c != "" {
		popup += "<br><em>" + escapeHTML(c) + "</em>"
	}
	if p.Rating != nil && p.RatingCount != nil {
		popup += fmt.Sprintf("<br>&#9733; %.1f (%d)", *p.Rating, *p.RatingCount)
	}
	if p.Vicinity != "" {
		popup += "<br>" + escapeHTML(p.Vicinity)
	}
	return popup
}

type markerJS struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Popup string  `json:"popup"`
}

// renderMapScript generates the Leaflet map with one marker per place, one
// circle per searched area and a live feed that adds both as a search
// runs.
func renderMapScript(places []Place, areas []SearchArea, center LatLng, zoom int) string {
	markers := make([]markerJS, len(places))
	for i, p := range places {
		markers[i] = markerJS{Lat: p.Lat, Lng: p.Lng, Popup: placePopupHTML(p)}
	}
	if areas == nil {
		areas = []SearchArea{}
	}
	mb, err := json.Marshal(markers)
	if err != nil {
		logf("map markers: %v", err)
		mb = []byte("[]")
	}
	ab, err := json.Marshal(areas)
	if err != nil {
		logf("map areas: %v", err)
		ab = []byte("[]")
	}

	return fmt.Sprintf(`%s
<script>
(function() {
  var map = L.map('places-map').setView([%s,%s],%d);
  L.tileLayer('https://tile.openstreetmap.org/{z}/{x}/{y}.png',{maxZoom:19,attribution:'&copy; <a href="http://www.openstreetmap.org/copyright">OpenStreetMap</a>'}).addTo(map);

  var picked = L.marker([%s,%s]).addTo(map);
  map.on('click', function(e) {
    picked.setLatLng(e.latlng);
    document.getElementById('search-lat').value = e.latlng.lat;
    document.getElementById('search-lng').value = e.latlng.lng;
  });

  function addMarker(m) {
    L.circleMarker([m.lat, m.lng], {radius:6,color:'#d33',fillOpacity:0.8}).addTo(map).bindPopup(m.popup);
  }
  function addArea(a) {
    L.circle([a.center.lat, a.center.lng], {radius:a.radius,color:'#3388ff',weight:1,fillOpacity:0.05}).addTo(map);
  }
  %s.forEach(addMarker);
  %s.forEach(addArea);

  if (!window.WebSocket) return;
  var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
  var ws = new WebSocket(proto + location.host + '/places/live');
  ws.onmessage = function(msg) {
    var ev = JSON.parse(msg.data);
    if (ev.type === 'place' && ev.place) {
      var p = ev.place;
      addMarker({lat:p.lat, lng:p.lng, popup:'<b>' + (p.name || '').replace(/[&<>"']/g, function(c) { return '&#' + c.charCodeAt(0) + ';'; }) + '</b>'});
    } else if (ev.type === 'area' && ev.area) {
      addArea(ev.area);
    } else if (ev.type === 'warning') {
      var w = document.getElementById('places-warning');
      w.textContent = ev.message;
      w.style.display = '';
    } else if (ev.type === 'search') {
      location.reload();
    }
  };
})();
</script>`, leafletAssets,
		formatFloat(center.Lat), formatFloat(center.Lng), zoom,
		formatFloat(center.Lat), formatFloat(center.Lng),
		string(mb), string(ab))
}

func formatFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.8f", f), "0"), ".")
}

func disabledIf(b bool) string {
	if b {
		return " disabled"
	}
	return ""
}

// escapeHTML escapes HTML special characters
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&#34;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
