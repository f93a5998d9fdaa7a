package types

type Authority struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Role       string `json:"role"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

type Purpose struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	AuthorityIDs []string `json:"authorityIds"` // never nil; may be empty
}

type RegisteredVehicle struct {
	LicensePlate string `json:"licensePlate"`
	OwnerName    string `json:"ownerName"`
	Purpose      string `json:"purpose"`
}
