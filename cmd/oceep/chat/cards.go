package chat

import (
	"fmt"
	"strings"

	"github.com/foxai-labs/oceep/internal/blocks"
)

// renderCards draws every extracted rich card as a bordered panel.
func (m *Model) renderCards(c blocks.Cards) string {
	if c.Empty() {
		return ""
	}

	var panels []string
	add := func(head, body string) {
		panels = append(panels, m.styles.card.Render(
			m.styles.cardHead.Render(head)+"\n"+strings.TrimRight(body, "\n")))
	}

	if w := c.Weather; w != nil {
		body := fmt.Sprintf("%.0f°%s %s\nH %.0f° / L %.0f°",
			w.Current.Temp, w.Current.Unit, w.Current.Condition, w.Current.High, w.Current.Low)
		for i, d := range w.Daily {
			if i >= 3 {
				break
			}
			body += fmt.Sprintf("\n%s  %.0f°/%.0f°  %s", d.Day, d.High, d.Low, d.Condition)
		}
		add("Weather · "+w.Location, body)
	}

	if s := c.Stock; s != nil {
		arrow := "▼"
		if s.IsUp {
			arrow = "▲"
		}
		add(fmt.Sprintf("%s (%s)", s.Name, s.Symbol),
			fmt.Sprintf("%.2f %s  %s %s (%s)\nH %.2f / L %.2f",
				s.Price, s.Currency, arrow, s.Change, s.ChangePercent, s.High, s.Low))
	}

	if cur := c.Currency; cur != nil {
		add("Currency",
			fmt.Sprintf("%.2f %s = %.2f %s\nrate %.4f",
				cur.FromAmount, cur.FromCurrency, cur.ToAmount, cur.ToCurrency, cur.Rate))
	}

	if s := c.Sport; s != nil {
		add(s.League,
			fmt.Sprintf("%s %d : %d %s\n%s", s.HomeTeam, s.HomeScore, s.AwayScore, s.AwayTeam, s.Status))
	}

	if f := c.Flight; f != nil {
		add(fmt.Sprintf("%s %s", f.Airline, f.FlightNumber),
			fmt.Sprintf("%s %s → %s %s\n%s  %s",
				f.Departure.Code, f.Departure.Time, f.Arrival.Code, f.Arrival.Time, f.Duration, f.Price))
	}

	if cl := c.Calc; cl != nil {
		add("Calculator", fmt.Sprintf("%s = %s", cl.Expression, cl.Result))
	}

	if tm := c.Time; tm != nil {
		add("Time · "+tm.Location, fmt.Sprintf("%s\n%s (%s)", tm.Time, tm.Date, tm.Timezone))
	}

	if td := c.Todo; td != nil {
		var body strings.Builder
		for _, sec := range td.Sections {
			if sec.Title != "" {
				body.WriteString(sec.Title + "\n")
			}
			for _, task := range sec.Tasks {
				box := "[ ]"
				if task.Done {
					box = "[x]"
				}
				body.WriteString(fmt.Sprintf(" %s %s\n", box, task.Text))
			}
		}
		add("Todo · "+td.Title, body.String())
	}

	for _, loc := range c.Locations {
		body := loc.Description
		if loc.Address != "" {
			body += "\n" + loc.Address
		}
		if loc.Rating > 0 {
			body += fmt.Sprintf("\n★ %.1f  %s", loc.Rating, loc.OpenStatus)
		}
		add("Place · "+loc.Name, body)
	}

	return strings.Join(panels, "\n") + "\n"
}
