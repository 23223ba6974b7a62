package request

type CreateProvision struct {
	ClientRef     string `json:"client_ref" validate:"omitempty,max=128"`
	Email         string `json:"email" validate:"required,email"`
	Company       string `json:"company" validate:"omitempty,max=255"`
	ClientName    string `json:"client_name" validate:"required,max=255"`
	Subdomain     string `json:"subdomain" validate:"required,subdomain"`
	AdminPassword string `json:"admin_password" validate:"omitempty,min=8,max=128"`
	BackendRepo   string `json:"backend_repo" validate:"omitempty,url"`
	FrontendRepo  string `json:"frontend_repo" validate:"omitempty,url"`
}
