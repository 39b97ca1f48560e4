package serving

import "strconv"

// formField describes one input of the prediction form. Options carry the
// label-encoded value of each category.
type formField struct {
	Name    string
	Label   string
	Step    string
	Options []formOption
}

type formOption struct {
	Value string
	Text  string
}

// formFields lists the inputs in the order the model expects them.
var formFields = []formField{
	{Name: "lead_time", Label: "Lead time (days)", Step: "1"},
	{Name: "special_requests_count", Label: "Number of special requests", Step: "1"},
	{Name: "avg_price_per_room", Label: "Average price per room", Step: "0.01"},
	{Name: "arrival_month", Label: "Arrival month", Options: numbered(1, 12)},
	{Name: "arrival_date", Label: "Arrival date", Options: numbered(1, 31)},
	{Name: "market_segment_type", Label: "Market segment", Options: []formOption{
		{"0", "Aviation"}, {"1", "Complementary"}, {"2", "Corporate"}, {"3", "Offline"}, {"4", "Online"},
	}},
	{Name: "week_nights", Label: "Week nights", Step: "1"},
	{Name: "weekend_nights", Label: "Weekend nights", Step: "1"},
	{Name: "meal_plan_type", Label: "Meal plan", Options: []formOption{
		{"0", "Meal Plan 1"}, {"1", "Meal Plan 2"}, {"2", "Meal Plan 3"}, {"3", "Not Selected"},
	}},
	{Name: "room_type", Label: "Room type", Options: []formOption{
		{"0", "Room_Type 1"}, {"1", "Room_Type 2"}, {"2", "Room_Type 3"}, {"3", "Room_Type 4"},
		{"4", "Room_Type 5"}, {"5", "Room_Type 6"}, {"6", "Room_Type 7"},
	}},
}

func numbered(from, to int) []formOption {
	out := make([]formOption, 0, to-from+1)
	for i := from; i <= to; i++ {
		v := strconv.Itoa(i)
		out = append(out, formOption{Value: v, Text: v})
	}
	return out
}
