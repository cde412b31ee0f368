package weatherapi

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Observation filters accepted by the observations endpoint.
const (
	FilterMetar   = "metar"
	FilterMesonet = "mesonet"
	FilterPWS     = "pws"
	FilterAll     = "allstations"
)

// RequestOptions carries the optional query parameters common to every
// endpoint. Zero values are omitted from the request.
type RequestOptions struct {
	Limit  int       `json:"limit,omitempty" mapstructure:"limit" validate:"gte=0"`
	Skip   int       `json:"skip,omitempty" mapstructure:"skip" validate:"gte=0"`
	Radius string    `json:"radius,omitempty" mapstructure:"radius"`
	Filter string    `json:"filter,omitempty" mapstructure:"filter"`
	Query  string    `json:"query,omitempty" mapstructure:"query"`
	Sort   string    `json:"sort,omitempty" mapstructure:"sort"`
	Fields []string  `json:"fields,omitempty" mapstructure:"fields"`
	From   time.Time `json:"from,omitempty" mapstructure:"-"`
	To     time.Time `json:"to,omitempty" mapstructure:"-"`
}

// Merge returns o with every non-zero field of over applied on top.
func (o RequestOptions) Merge(over RequestOptions) RequestOptions {
	if over.Limit != 0 {
		o.Limit = over.Limit
	}
	if over.Skip != 0 {
		o.Skip = over.Skip
	}
	if over.Radius != "" {
		o.Radius = over.Radius
	}
	if over.Filter != "" {
		o.Filter = over.Filter
	}
	if over.Query != "" {
		o.Query = over.Query
	}
	if over.Sort != "" {
		o.Sort = over.Sort
	}
	if len(over.Fields) > 0 {
		o.Fields = append([]string(nil), over.Fields...)
	}
	if !over.From.IsZero() {
		o.From = over.From
	}
	if !over.To.IsZero() {
		o.To = over.To
	}
	return o
}

// Values encodes the options as query parameters.
func (o RequestOptions) Values() url.Values {
	values := url.Values{}
	if o.Limit > 0 {
		values.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Skip > 0 {
		values.Set("skip", strconv.Itoa(o.Skip))
	}
	if o.Radius != "" {
		values.Set("radius", o.Radius)
	}
	if o.Filter != "" {
		values.Set("filter", o.Filter)
	}
	if o.Query != "" {
		values.Set("query", o.Query)
	}
	if o.Sort != "" {
		values.Set("sort", o.Sort)
	}
	if len(o.Fields) > 0 {
		values.Set("fields", strings.Join(o.Fields, ","))
	}
	if !o.From.IsZero() {
		values.Set("from", strconv.FormatInt(o.From.Unix(), 10))
	}
	if !o.To.IsZero() {
		values.Set("to", strconv.FormatInt(o.To.Unix(), 10))
	}
	return values
}
