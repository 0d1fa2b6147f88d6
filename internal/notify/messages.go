package notify

// User-facing messages.
const (
	MsgItemAdded       = "Item added to cart"
	MsgAddFailed       = "Failed to add item to cart"
	MsgCartUpdated     = "Cart updated"
	MsgUpdateFailed    = "Failed to update cart"
	MsgItemRemoved     = "Item removed from cart"
	MsgRemoveFailed    = "Failed to remove item from cart"
	MsgCartCleared     = "Cart cleared"
	MsgClearFailed     = "Failed to clear cart"
	MsgCartLoadFailed  = "Failed to load shopping cart"
	MsgCartCreateFail  = "Failed to create shopping cart"
	MsgSignInToAdd     = "Please log in to add items to your cart"
	MsgSignInRequired  = "Please log in to manage your cart"
	MsgInvalidQuantity = "Quantity must be greater than zero"

	MsgProductsLoadFailed = "Failed to load products"
	MsgSearchFailed       = "Search failed"
	MsgCategoryLoadFailed = "Failed to load category products"
	MsgProductLoadFailed  = "Failed to load product details"

	MsgOrderPlaced      = "Order placed successfully!"
	MsgOrderFailed      = "Failed to place order. Please try again."
	MsgCartEmpty        = "Your cart is empty"
	MsgSignInToCheckout = "Please log in to place an order"
	MsgShippingInvalid  = "Please fill in all shipping fields"
	MsgOrdersLoadFailed = "Failed to load your orders. Please try again."
	MsgOrderLoadFailed  = "Could not load order details"

	MsgSignedIn            = "Signed in successfully"
	MsgCredentialsRequired = "Please enter both username and password"
	MsgSignInFailed        = "Invalid username or password"
	MsgSignedOut           = "Signed out"
	MsgBackendFailed       = "The store is temporarily unavailable. Please try again."
	MsgRegistered          = "Account created"
	MsgRegisterFailed      = "Failed to create your account"
	MsgProfileUpdated      = "Profile updated"
	MsgProfileUpdateFailed = "Failed to update your profile"

	MsgAdminOrdersLoadFailed = "Failed to load orders. Please try again."
	MsgOrderStatusUpdated    = "Order status updated to %s"
	MsgOrderStatusFailed     = "Failed to update order status"
	MsgOrderCancelled        = "Order cancelled"
	MsgOrderCancelFailed     = "Failed to cancel order"
	MsgProductCreated        = "Product created successfully"
	MsgProductCreateFailed   = "Failed to create product"
	MsgProductUpdated        = "Product updated successfully"
	MsgProductUpdateFailed   = "Failed to update product"
	MsgProductDeleted        = "Product deleted"
	MsgProductDeleteFailed   = "Failed to delete product"
	MsgStockUpdated          = "Stock updated"
	MsgStockUpdateFailed     = "Failed to update stock"
	MsgUserCreated           = "User created successfully"
	MsgUserCreateFailed      = "Failed to create user"
	MsgUserUpdated           = "User updated successfully"
	MsgUserUpdateFailed      = "Failed to update user"
	MsgUserLoadFailed        = "Failed to load user"
	MsgUserDeleted           = "User deleted"
	MsgUserDeleteFailed      = "Failed to delete user"
	MsgUsersLoadFailed       = "Failed to load users"
)
