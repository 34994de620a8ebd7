package export

import (
	"bytes"
	"fmt"
	"html/template"
)

// FlyerData holds everything the flyer template renders.
type FlyerData struct {
	AgencyName   string
	Title        string
	Code         string
	Description  string
	Type         string
	Price        string
	Bedrooms     int
	Bathrooms    int
	AreaM2       float64
	Address      string
	City         string
	Neighborhood string
	Features     []string
	ImageURLs    []string
	ContactEmail string
	ContactPhone string
}

var flyerTemplate = template.Must(template.New("flyer").Parse(flyerHTML))

// RenderFlyerHTML renders the property flyer template.
func RenderFlyerHTML(data FlyerData) (string, error) {
	var buf bytes.Buffer
	if err := flyerTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatPrice renders integer cents as a currency string for the flyer.
func FormatPrice(cents int64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%s %d.%02d", currency, cents/100, cents%100)
}

const flyerHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 1.5rem auto; color: #222; }
    header { display: flex; justify-content: space-between; align-items: baseline; border-bottom: 3px solid #1a3c6e; padding-bottom: 0.5rem; }
    .agency { font-size: 1.1em; font-weight: bold; color: #1a3c6e; }
    .code { color: #666; font-size: 0.9em; }
    h1 { margin: 0.8rem 0 0.2rem; }
    .price { font-size: 1.6em; font-weight: bold; color: #1a3c6e; margin: 0.4rem 0; }
    .location { color: #555; margin-bottom: 1rem; }
    .facts { display: flex; gap: 2rem; background: #f3f6fb; padding: 0.8rem 1rem; margin: 1rem 0; }
    .facts div { text-align: center; }
    .facts strong { display: block; font-size: 1.2em; }
    .photos { display: flex; flex-wrap: wrap; gap: 0.5rem; margin: 1rem 0; }
    .photos img { width: 48%; object-fit: cover; }
    ul.features { columns: 2; }
    footer { margin-top: 1.5rem; border-top: 1px solid #ccc; padding-top: 0.5rem; color: #555; font-size: 0.9em; }
  </style>
</head>
<body>
  <header>
    <span class="agency">{{.AgencyName}}</span>
    <span class="code">Ref. {{.Code}}</span>
  </header>
  <h1>{{.Title}}</h1>
  <div class="price">{{.Price}}{{if eq .Type "rent"}} / month{{end}}</div>
  <div class="location">{{.Address}}{{if .Neighborhood}} &middot; {{.Neighborhood}}{{end}}{{if .City}} &middot; {{.City}}{{end}}</div>
  <div class="facts">
    <div><strong>{{.Bedrooms}}</strong> bedrooms</div>
    <div><strong>{{.Bathrooms}}</strong> bathrooms</div>
    <div><strong>{{printf "%.0f" .AreaM2}}</strong> m&sup2;</div>
  </div>
  {{if .ImageURLs}}
  <div class="photos">
    {{range .ImageURLs}}<img src="{{.}}" alt="">{{end}}
  </div>
  {{end}}
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  {{if .Features}}
  <ul class="features">
    {{range .Features}}<li>{{.}}</li>{{end}}
  </ul>
  {{end}}
  <footer>
    {{.AgencyName}}{{if .ContactEmail}} &middot; {{.ContactEmail}}{{end}}{{if .ContactPhone}} &middot; {{.ContactPhone}}{{end}}
  </footer>
</body>
</html>`
