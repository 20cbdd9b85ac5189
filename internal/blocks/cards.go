package blocks

// Kind names a rich-card block type as it appears in the delimiter,
// e.g. :::weather ... :::.
type Kind string

const (
	KindTodo     Kind = "todo"
	KindWeather  Kind = "weather"
	KindStock    Kind = "stock"
	KindCurrency Kind = "currency"
	KindSport    Kind = "sport"
	KindFlight   Kind = "flight"
	KindCalc     Kind = "calc"
	KindTime     Kind = "time"
	KindLocation Kind = "location"
)

var knownKinds = map[Kind]bool{
	KindTodo:     true,
	KindWeather:  true,
	KindStock:    true,
	KindCurrency: true,
	KindSport:    true,
	KindFlight:   true,
	KindCalc:     true,
	KindTime:     true,
	KindLocation: true,
}

// =============================================================================
// CARD PAYLOADS
// =============================================================================

// TodoTask is one checklist item.
type TodoTask struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// TodoSection groups tasks under a colored heading.
type TodoSection struct {
	Title string     `json:"title"`
	Color string     `json:"color"`
	Tasks []TodoTask `json:"tasks"`
}

// TodoData is an interactive plan/checklist card.
type TodoData struct {
	Title    string        `json:"title"`
	Sections []TodoSection `json:"sections"`
}

// WeatherCurrent is the present conditions half of a weather card.
type WeatherCurrent struct {
	Temp      float64 `json:"temp"`
	Unit      string  `json:"unit"`
	Condition string  `json:"condition"`
	Desc      string  `json:"desc"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
}

// WeatherHour is one hourly forecast entry.
type WeatherHour struct {
	Time string  `json:"time"`
	Temp float64 `json:"temp"`
	Icon string  `json:"icon"`
}

// WeatherDay is one daily forecast entry.
type WeatherDay struct {
	Day       string  `json:"day"`
	Icon      string  `json:"icon"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Condition string  `json:"condition"`
}

// WeatherData is a weather card.
type WeatherData struct {
	Location string         `json:"location"`
	Current  WeatherCurrent `json:"current"`
	Hourly   []WeatherHour  `json:"hourly"`
	Daily    []WeatherDay   `json:"daily"`
}

// StockData is a stock/crypto quote card.
type StockData struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	Change        string  `json:"change"`
	ChangePercent string  `json:"changePercent"`
	IsUp          bool    `json:"isUp"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
}

// CurrencyData is a fiat currency conversion card.
type CurrencyData struct {
	FromCurrency string  `json:"fromCurrency"`
	ToCurrency   string  `json:"toCurrency"`
	FromAmount   float64 `json:"fromAmount"`
	ToAmount     float64 `json:"toAmount"`
	Rate         float64 `json:"rate"`
}

// SportData is a match score card.
type SportData struct {
	League       string `json:"league"`
	HomeTeam     string `json:"homeTeam"`
	AwayTeam     string `json:"awayTeam"`
	HomeScore    int    `json:"homeScore"`
	AwayScore    int    `json:"awayScore"`
	Status       string `json:"status"`
	StartTime    string `json:"startTime"`
	HomeTeamLogo string `json:"homeTeamLogo"`
	AwayTeamLogo string `json:"awayTeamLogo"`
}

// FlightEndpoint is one end of a flight card.
type FlightEndpoint struct {
	Code string `json:"code"`
	Time string `json:"time"`
	City string `json:"city"`
}

// FlightData is a flight info card.
type FlightData struct {
	Airline      string         `json:"airline"`
	FlightNumber string         `json:"flightNumber"`
	Departure    FlightEndpoint `json:"departure"`
	Arrival      FlightEndpoint `json:"arrival"`
	Duration     string         `json:"duration"`
	Price        string         `json:"price"`
}

// CalcData is a calculator result card.
type CalcData struct {
	Expression string `json:"expression"`
	Result     string `json:"result"`
}

// TimeData is a timezone card.
type TimeData struct {
	Location string `json:"location"`
	Time     string `json:"time"`
	Date     string `json:"date"`
	Timezone string `json:"timezone"`
}

// LocationData is a place card. Unlike the singular kinds, a message
// may carry several of these and all are kept in order.
type LocationData struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Address     string   `json:"address"`
	Rating      float64  `json:"rating"`
	OpenStatus  string   `json:"openStatus"`
	ImageURL    string   `json:"imageUrl"`
	Images      []string `json:"images"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Website     string   `json:"website"`
	PhoneNumber string   `json:"phoneNumber"`
}

// Cards is everything extracted from one message. Singular kinds hold
// the last block of that kind in the message; earlier ones are
// discarded. Locations keeps every occurrence in document order.
type Cards struct {
	Todo      *TodoData
	Weather   *WeatherData
	Stock     *StockData
	Currency  *CurrencyData
	Sport     *SportData
	Flight    *FlightData
	Calc      *CalcData
	Time      *TimeData
	Locations []LocationData
}

// Empty reports whether no card was extracted.
func (c Cards) Empty() bool {
	return c.Todo == nil && c.Weather == nil && c.Stock == nil &&
		c.Currency == nil && c.Sport == nil && c.Flight == nil &&
		c.Calc == nil && c.Time == nil && len(c.Locations) == 0
}
