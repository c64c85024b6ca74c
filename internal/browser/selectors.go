package browser

// Selector candidates, ordered most to least likely. The site's markup
// changes between redesigns so every lookup walks a list.

var loginUserSelectors = []string{
	`input#username`,
	`input[name="username"]`,
	`input[name="_username"]`,
	`input[type="email"]`,
	`input[autocomplete="username"]`,
}

var loginPassSelectors = []string{
	`input#password`,
	`input[name="password"]`,
	`input[name="_password"]`,
	`input[type="password"]`,
}

var loginSubmitSelectors = []string{
	`button#login`,
	`button[type="submit"]`,
	`button.login-button`,
	`input[type="submit"]`,
}

var popupCloseSelectors = []string{
	`button[aria-label="Close"]`,
	`.modal-first-time-button`,
	`.icon-font-chess.x`,
	`button.ui_outside-close-component`,
	`div[data-cy="dismiss"]`,
	`.bottom-banner-close`,
	`button.close`,
}

var boardSelectors = []string{
	`wc-chess-board`,
	`chess-board`,
	`#board-layout-chessboard .board`,
	`#board`,
	`.board`,
}

var moveInputSelectors = []string{
	`input.move-input`,
	`input[placeholder="Enter move"]`,
	`#move-input`,
}

var promotionQueenSelectors = []string{
	`.promotion-piece.wq`,
	`.promotion-piece.bq`,
	`[data-piece="q"]`,
	`.promotion-window .queen`,
}
