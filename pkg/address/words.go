package address

// words maps octet value to its word; index 0 is unused.
var words = [256]string{
	"",
	"Apple", "Apricot", "Artichoke", "Asparagus", "Bacon", "Bagel",
	"Banana", "Barley", "Basil", "Bean", "Beef", "Beet",
	"Berry", "Biscuit", "Blueberry", "Bread", "Brie", "Broccoli",
	"Brownie", "Butter", "Cabbage", "Cake", "Candy", "Carrot",
	"Cashew", "Celery", "Cheese", "Cherry", "Chestnut", "Chicken",
	"Chickpea", "Chili", "Chive", "Chocolate", "Chowder", "Cider",
	"Cinnamon", "Clam", "Clove", "Cobbler", "Cocoa", "Coconut",
	"Cod", "Coffee", "Cookie", "Coriander", "Corn", "Crab",
	"Cracker", "Cranberry", "Cream", "Crepe", "Croissant", "Crouton",
	"Cucumber", "Cumin", "Cupcake", "Curry", "Custard", "Date",
	"Dill", "Donut", "Dumpling", "Eclair", "Egg", "Eggplant",
	"Elderberry", "Endive", "Espresso", "Falafel", "Fennel", "Feta",
	"Fig", "Fillet", "Flan", "Flour", "Fondue", "Fudge",
	"Garlic", "Gelato", "Ginger", "Gnocchi", "Goulash", "Granola",
	"Grape", "Grapefruit", "Gravy", "Guava", "Gumbo", "Haddock",
	"Halibut", "Ham", "Hazelnut", "Herring", "Honey", "Hummus",
	"Icing", "Jam", "Jelly", "Jerky", "Juice", "Kale",
	"Kebab", "Ketchup", "Kiwi", "Kumquat", "Lamb", "Lasagna",
	"Leek", "Lemon", "Lentil", "Lettuce", "Lime", "Linguine",
	"Lobster", "Lychee", "Macaroni", "Mackerel", "Mango", "Maple",
	"Marmalade", "Marzipan", "Meatball", "Melon", "Meringue", "Milk",
	"Millet", "Mint", "Miso", "Muffin", "Mushroom", "Mussel",
	"Mustard", "Nectarine", "Noodle", "Nougat", "Nutmeg", "Oat",
	"Okra", "Olive", "Omelet", "Onion", "Orange", "Oregano",
	"Oyster", "Paella", "Pancake", "Papaya", "Paprika", "Parsley",
	"Parsnip", "Pasta", "Pastry", "Peach", "Peanut", "Pear",
	"Pecan", "Pepper", "Pesto", "Pickle", "Pie", "Pineapple",
	"Pistachio", "Pita", "Pizza", "Plum", "Popcorn", "Pork",
	"Porridge", "Potato", "Pretzel", "Prune", "Pudding", "Pumpkin",
	"Quail", "Quiche", "Quince", "Quinoa", "Radish", "Raisin",
	"Ramen", "Raspberry", "Ravioli", "Relish", "Rhubarb", "Rice",
	"Risotto", "Rosemary", "Rye", "Saffron", "Sage", "Salad",
	"Salami", "Salmon", "Salsa", "Salt", "Sandwich", "Sardine",
	"Sauce", "Sausage", "Scallop", "Scone", "Sesame", "Shallot",
	"Sherbet", "Shrimp", "Soup", "Soy", "Spaghetti", "Spinach",
	"Sprout", "Squash", "Squid", "Steak", "Stew", "Strawberry",
	"Strudel", "Sugar", "Sushi", "Syrup", "Taco", "Tahini",
	"Tamale", "Tangerine", "Tapioca", "Tarragon", "Tart", "Tea",
	"Thyme", "Toast", "Toffee", "Tofu", "Tomato", "Tortilla",
	"Truffle", "Tuna", "Turkey", "Turmeric", "Turnip", "Vanilla",
	"Veal", "Venison", "Vinegar", "Waffle", "Walnut", "Wasabi",
	"Watercress", "Watermelon", "Wheat", "Wonton", "Yam", "Yogurt",
	"Yuzu", "Zest", "Zucchini",
}
