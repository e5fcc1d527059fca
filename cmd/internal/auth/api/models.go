package api

type userResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type meResponse struct {
	User userResponse `json:"user"`
}

type homeResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}
