package model

type ShopPlan struct {
	DisplayName string `json:"displayName"`
}

type Shop struct {
	Name              string    `json:"name"`
	Email             *string   `json:"email"`
	MyfunpinpinDomain string    `json:"myfunpinpinDomain"`
	Plan              *ShopPlan `json:"plan"`
}
