package authority

import "encoding/json"

type seatDTO struct {
	Row      int    `json:"fila"`
	Column   int    `json:"columna"`
	Status   string `json:"estado,omitempty"`
	Occupant string `json:"persona,omitempty"`
}

type lockRequest struct {
	EventID int64     `json:"eventoId"`
	Seats   []seatDTO `json:"asientos"`
}

type lockResponse struct {
	Result      bool   `json:"resultado"`
	Description string `json:"descripcion"`
}

type saleRequest struct {
	EventID int64       `json:"eventoId"`
	Date    string      `json:"fecha"`
	Price   json.Number `json:"precioVenta"`
	Seats   []seatDTO   `json:"asientos"`
}

type saleResponse struct {
	EventID     int64       `json:"eventoId"`
	SaleID      *int64      `json:"ventaId"`
	SaleDate    string      `json:"fechaVenta"`
	Seats       []seatDTO   `json:"asientos"`
	Result      bool        `json:"resultado"`
	Description string      `json:"descripcion"`
	Price       json.Number `json:"precioVenta"`
	SeatCount   int         `json:"cantidadAsientos"`
}

type eventResponse struct {
	ID      int64       `json:"id"`
	Title   string      `json:"titulo"`
	Rows    int         `json:"filaAsientos"`
	Columns int         `json:"columnAsientos"`
	Price   json.Number `json:"precioEntrada"`
}
