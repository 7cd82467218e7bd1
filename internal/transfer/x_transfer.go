package transfer

type XTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

type XUserInfoResponse struct {
	Data XUserData `json:"data"`
}

type XUserData struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
}

type XMediaUploadResponse struct {
	Data XMediaData `json:"data"`
}

type XMediaData struct {
	ID string `json:"id"`
}

type TweetRequest struct {
	Text  string      `json:"text"`
	Media *TweetMedia `json:"media,omitempty"`
}

type TweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type TweetResponse struct {
	Data TweetData `json:"data"`
}

type TweetData struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type XErrorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
}
