package models

// OrderStatus is the lifecycle status of an order and of its lines.
// The short codes are persisted; Display returns the human label.
type OrderStatus string

const (
	StatusInitiated     OrderStatus = "i"
	StatusWaiting       OrderStatus = "w"
	StatusPaid          OrderStatus = "p"
	StatusBeingPrepared OrderStatus = "bp"
	StatusReady         OrderStatus = "re"
	StatusUnderDelivery OrderStatus = "u"
	StatusDelivered     OrderStatus = "d"
	StatusRefused       OrderStatus = "r"
	StatusCanceled      OrderStatus = "c"
)

var statusDisplay = map[OrderStatus]string{
	StatusInitiated:     "Initiated",
	StatusWaiting:       "Waiting",
	StatusPaid:          "Paid",
	StatusBeingPrepared: "Being Prepared",
	StatusReady:         "Ready For Delivery",
	StatusUnderDelivery: "Under Delivery",
	StatusDelivered:     "Delivered",
	StatusRefused:       "Refused",
	StatusCanceled:      "Canceled",
}

// Valid reports whether s is one of the known status codes.
func (s OrderStatus) Valid() bool {
	_, ok := statusDisplay[s]
	return ok
}

// Display returns the human-readable label for the status.
func (s OrderStatus) Display() string {
	if label, ok := statusDisplay[s]; ok {
		return label
	}
	return string(s)
}

// Terminal reports whether the status is a side branch (canceled/refused).
func (s OrderStatus) Terminal() bool {
	return s == StatusCanceled || s == StatusRefused
}

// PaymentProvider identifies which payment gateway owns an order's invoice.
type PaymentProvider string

const (
	ProviderShakeout PaymentProvider = "shakeout"
	ProviderEasypay  PaymentProvider = "easypay"
	ProviderManual   PaymentProvider = "manual"
)

// GovernmentNames maps government codes to display names, used by the
// shipping fee table and order addresses.
var GovernmentNames = map[string]string{
	"1": "Cairo", "2": "Alexandria", "3": "Kafr El Sheikh", "4": "Dakahleya",
	"5": "Sharkeya", "6": "Gharbeya", "7": "Monefeya", "8": "Qalyubia",
	"9": "Giza", "10": "Bani-Sweif", "11": "Fayoum", "12": "Menya",
	"13": "Assiut", "14": "Sohag", "15": "Qena", "16": "Luxor",
	"17": "Aswan", "18": "Red Sea", "19": "Behera", "20": "Ismailia",
	"21": "Suez", "22": "Port-Said", "23": "Damietta", "24": "Marsa Matrouh",
	"25": "Al-Wadi Al-Gadid", "26": "North Sinai", "27": "South Sinai",
}
